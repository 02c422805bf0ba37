package resource

import (
	"github.com/pitabwire/flagconsole/internal/formsession"
	"github.com/pitabwire/flagconsole/model"
)

// Commands sent to the platform API. Update commands use pointer fields so
// that unchanged values are left out of the request.

type CreateAccountCommand struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  int32  `json:"role"`
}

type UpdateAccountCommand struct {
	Name *string `json:"name,omitempty"`
	Role *int32  `json:"role,omitempty"`
}

type CreateAPIKeyCommand struct {
	Name string `json:"name"`
	Role int32  `json:"role"`
}

type UpdateAPIKeyCommand struct {
	Name *string `json:"name,omitempty"`
}

type CreateEnvironmentCommand struct {
	Name        string `json:"name"`
	URLCode     string `json:"urlCode"`
	Description string `json:"description,omitempty"`
	ProjectID   string `json:"projectId"`
}

type UpdateEnvironmentCommand struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type CreateProjectCommand struct {
	Name        string `json:"name"`
	URLCode     string `json:"urlCode"`
	Description string `json:"description,omitempty"`
}

type UpdateProjectCommand struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type CreateSubscriptionCommand struct {
	Name        string          `json:"name"`
	SourceTypes []int32         `json:"sourceTypes"`
	Recipient   model.Recipient `json:"recipient"`
}

type UpdateSubscriptionCommand struct {
	Name        *string `json:"name,omitempty"`
	SourceTypes []int32 `json:"sourceTypes,omitempty"`
}

type CreatePushCommand struct {
	Name      string   `json:"name"`
	FCMAPIKey string   `json:"fcmApiKey"`
	Tags      []string `json:"tags"`
}

type UpdatePushCommand struct {
	Name *string  `json:"name,omitempty"`
	Tags []string `json:"tags,omitempty"`
}

type CreateWebhookCommand struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UpdateWebhookCommand struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type CreateGoalCommand struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UpdateGoalCommand struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type CreateExperimentCommand struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	FeatureID   string   `json:"featureId"`
	GoalIDs     []string `json:"goalIds"`
	StartAt     int64    `json:"startAt,string"`
	StopAt      int64    `json:"stopAt,string"`
}

type UpdateExperimentCommand struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// VariationInput is one variation of a new feature.
type VariationInput struct {
	Value string `json:"value"`
	Name  string `json:"name"`
}

// RolloutWeight is a variation's share of the default rollout in
// thousandths of a percent, as the platform stores it.
type RolloutWeight struct {
	Variation int   `json:"variation"`
	Weight    int32 `json:"weight"`
}

type CreateFeatureCommand struct {
	ID                       string           `json:"id"`
	Name                     string           `json:"name"`
	Description              string           `json:"description,omitempty"`
	Tags                     []string         `json:"tags"`
	VariationType            int32            `json:"variationType"`
	Variations               []VariationInput `json:"variations"`
	DefaultRollout           []RolloutWeight  `json:"defaultRollout,omitempty"`
	DefaultOffVariationIndex int              `json:"defaultOffVariationIndex"`
}

type UpdateFeatureCommand struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// EventRateClause is the auto operation clause of an event-rate rule.
// ThreadsholdRate is a ratio.
type EventRateClause struct {
	VariationID     string  `json:"variationId"`
	GoalID          string  `json:"goalId"`
	MinCount        int64   `json:"minCount,string"`
	ThreadsholdRate float64 `json:"threadsholdRate"`
	Operator        int32   `json:"operator"`
}

type CreateEventRateCommand struct {
	FeatureID string          `json:"featureId"`
	Clause    EventRateClause `json:"clause"`
}

type UpdateEventRateCommand struct {
	Clause EventRateClause `json:"clause"`
}

func dirtyString(st model.FormState, name string) *string {
	if v, ok := formsession.DirtyString(st, name); ok {
		return &v
	}
	return nil
}

func dirtyInt32(st model.FormState, name string) *int32 {
	if v, ok := formsession.DirtyInt32(st, name); ok {
		return &v
	}
	return nil
}

func dirtyStrings(st model.FormState, name string) []string {
	if !st.IsFieldDirty(name) {
		return nil
	}
	return formsession.Strings(st.Values[name])
}

func dirtyInt32s(st model.FormState, name string) []int32 {
	if !st.IsFieldDirty(name) {
		return nil
	}
	return formsession.Int32s(st.Values[name])
}
