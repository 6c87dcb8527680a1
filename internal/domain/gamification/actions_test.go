package gamification

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestMetadataEnvelopeRoundTrip(t *testing.T) {
	in := ReviewSubmittedMetadata{AppID: "app-9", ReviewID: "rev-4", Rating: 5}
	raw, err := MarshalMetadata(in)
	if err != nil {
		t.Fatalf("MarshalMetadata: %v", err)
	}
	if !strings.Contains(string(raw), `"kind":"review_submitted"`) {
		t.Fatalf("envelope missing kind tag: %s", raw)
	}
	out, err := UnmarshalMetadata(raw)
	if err != nil {
		t.Fatalf("UnmarshalMetadata: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("round trip: want=%+v got=%+v", in, out)
	}
}

func TestUnmarshalMetadata_RejectsUnknownKind(t *testing.T) {
	if _, err := UnmarshalMetadata(json.RawMessage(`{"kind":"mystery"}`)); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if _, err := UnmarshalMetadata(json.RawMessage(`{"questId":"q-1"}`)); err == nil {
		t.Fatalf("expected error for missing kind")
	}
}

func TestXPTransactionJSON_CarriesMetadata(t *testing.T) {
	tx := XPTransaction{
		Amount:    15,
		Action:    ActionQuestCompleted,
		Timestamp: time.Date(2026, 8, 2, 8, 0, 0, 0, time.UTC),
		Metadata:  QuestCompletedMetadata{QuestID: "q-7"},
	}
	raw, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal transaction: %v", err)
	}
	var back XPTransaction
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal transaction: %v", err)
	}
	if !reflect.DeepEqual(back, tx) {
		t.Fatalf("round trip: want=%+v got=%+v", tx, back)
	}

	noMeta := XPTransaction{Amount: 5, Action: ActionReviewSubmitted, Timestamp: tx.Timestamp}
	raw, err = json.Marshal(noMeta)
	if err != nil {
		t.Fatalf("marshal metadata-free transaction: %v", err)
	}
	if strings.Contains(string(raw), "metadata") {
		t.Fatalf("metadata-free transaction should omit the field: %s", raw)
	}
}
