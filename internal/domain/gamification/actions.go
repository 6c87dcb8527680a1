package gamification

import (
	"encoding/json"
	"fmt"
)

// ActionType identifies a gamified user action known to the XP catalog.
type ActionType string

const (
	ActionQuestCompleted   ActionType = "quest_completed"
	ActionAppAdded         ActionType = "app_added"
	ActionReviewSubmitted  ActionType = "review_submitted"
	ActionProfileCompleted ActionType = "profile_completed"
	ActionAppViewed        ActionType = "app_viewed"
	ActionStreakMilestone  ActionType = "streak_milestone"
)

// Activity counter names referenced by catalog actions and badge requirements.
const (
	CounterQuestsCompleted  = "questsCompleted"
	CounterAppsAdded        = "appsAdded"
	CounterReviewsSubmitted = "reviewsSubmitted"
	CounterProfileUpdates   = "profileUpdates"
	CounterStreakMilestones = "streakMilestones"
)

// Metadata is the closed per-action transaction payload. Each variant carries
// a fixed field set and serializes through a kind-tagged JSON envelope.
type Metadata interface {
	MetadataKind() string
}

type QuestCompletedMetadata struct {
	QuestID string `json:"questId"`
	AppID   string `json:"appId,omitempty"`
}

func (QuestCompletedMetadata) MetadataKind() string { return string(ActionQuestCompleted) }

type AppAddedMetadata struct {
	AppID    string `json:"appId"`
	Platform string `json:"platform,omitempty"`
}

func (AppAddedMetadata) MetadataKind() string { return string(ActionAppAdded) }

type ReviewSubmittedMetadata struct {
	AppID    string `json:"appId"`
	ReviewID string `json:"reviewId"`
	Rating   int    `json:"rating,omitempty"`
}

func (ReviewSubmittedMetadata) MetadataKind() string { return string(ActionReviewSubmitted) }

type StreakMilestoneMetadata struct {
	StreakDays int `json:"streakDays"`
}

func (StreakMilestoneMetadata) MetadataKind() string { return string(ActionStreakMilestone) }

// MarshalMetadata serializes a metadata variant into its tagged envelope.
func MarshalMetadata(m Metadata) (json.RawMessage, error) {
	if m == nil {
		return nil, nil
	}
	switch v := m.(type) {
	case QuestCompletedMetadata:
		return json.Marshal(struct {
			Kind string `json:"kind"`
			QuestCompletedMetadata
		}{v.MetadataKind(), v})
	case AppAddedMetadata:
		return json.Marshal(struct {
			Kind string `json:"kind"`
			AppAddedMetadata
		}{v.MetadataKind(), v})
	case ReviewSubmittedMetadata:
		return json.Marshal(struct {
			Kind string `json:"kind"`
			ReviewSubmittedMetadata
		}{v.MetadataKind(), v})
	case StreakMilestoneMetadata:
		return json.Marshal(struct {
			Kind string `json:"kind"`
			StreakMilestoneMetadata
		}{v.MetadataKind(), v})
	default:
		return nil, fmt.Errorf("unsupported metadata type %T", m)
	}
}

// UnmarshalMetadata decodes a tagged envelope back into its variant.
func UnmarshalMetadata(data json.RawMessage) (Metadata, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	switch ActionType(head.Kind) {
	case ActionQuestCompleted:
		var v QuestCompletedMetadata
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case ActionAppAdded:
		var v AppAddedMetadata
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case ActionReviewSubmitted:
		var v ReviewSubmittedMetadata
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case ActionStreakMilestone:
		var v StreakMilestoneMetadata
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "":
		return nil, fmt.Errorf("metadata envelope missing kind")
	default:
		return nil, fmt.Errorf("unknown metadata kind %q", head.Kind)
	}
}
