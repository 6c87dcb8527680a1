package gamification

import (
	"context"
	"os"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/appquest/appquest-backend/internal/data/repos/testutil"
	"github.com/appquest/appquest-backend/internal/platform/neo4jdb"
)

func neo4jStore(t *testing.T) *Neo4jProfileStore {
	t.Helper()
	uri := os.Getenv("TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("set TEST_NEO4J_URI to run neo4j store tests")
	}
	user := os.Getenv("TEST_NEO4J_USER")
	if user == "" {
		user = "neo4j"
	}
	password := os.Getenv("TEST_NEO4J_PASSWORD")

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		t.Fatalf("neo4j driver: %v", err)
	}
	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		t.Fatalf("neo4j connectivity: %v", err)
	}
	t.Cleanup(func() {
		_ = driver.Close(ctx)
	})

	client := &neo4jdb.Client{Driver: driver, Database: os.Getenv("TEST_NEO4J_DATABASE")}
	return NewNeo4jProfileStore(client, testutil.Logger(t))
}

func TestNeo4jProfileStore(t *testing.T) {
	exerciseProfileStore(t, neo4jStore(t))
}
