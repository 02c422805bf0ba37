package resource

import (
	"regexp"
	"strconv"

	"github.com/pitabwire/flagconsole/internal/formsession"
	"github.com/pitabwire/flagconsole/internal/listing"
	"github.com/pitabwire/flagconsole/internal/sorting"
	"github.com/pitabwire/flagconsole/model"
)

const (
	featureIDMaxLength   = 100
	featureNameMaxLength = 100
	// eventRateMaxMinCount caps the minimum event count of an event-rate rule.
	eventRateMaxMinCount = 100000
	// rolloutScale converts a rollout percentage into the platform's weight
	// unit.
	rolloutScale = 1000
)

// Feature and goal ids allow upper case, unlike environment url codes.
var entityIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// Variation types.
const (
	VariationString  int32 = 0
	VariationBoolean int32 = 1
	VariationNumber  int32 = 2
	VariationJSON    int32 = 3
)

func entityID() formsession.Rule {
	return formsession.Pattern(entityIDPattern, "INVALID_ID")
}

func archivable[T any](archived func(T) bool) Action[T] {
	return Action[T]{Kind: model.ConfirmArchive, Applies: func(item T) bool { return !archived(item) }}
}

// featureQuery is the list query of one feature's event-rate rules.
type featureQuery struct {
	FeatureID string `url:"featureId"`
	Sort      string `url:"sort,omitempty"`
}

// Features are the feature flags of the current environment.
func Features() *Descriptor[model.Feature] {
	actions := []Action[model.Feature]{
		{Kind: model.ConfirmEnable, Applies: func(f model.Feature) bool { return !f.Enabled }},
		{Kind: model.ConfirmDisable, Applies: func(f model.Feature) bool { return f.Enabled }},
		archivable(func(f model.Feature) bool { return f.Archived }),
	}
	return &Descriptor[model.Feature]{
		Name: "features",
		List: listing.Descriptor{
			Resource: "features",
			PageSize: listing.DefaultPageSize,
			Sort:     sorting.Standard("CREATED_AT", "NAME", byNameDesc, false),
			Filters: []listing.Filter{
				{Option: "enabled", Param: "enabled", Kind: listing.FilterTristate},
				{Option: "hasExperiment", Param: "hasExperiment", Kind: listing.FilterTristate},
				{Option: "hasPrerequisites", Param: "hasPrerequisites", Kind: listing.FilterTristate},
				{Option: "archived", Param: "archived", Kind: listing.FilterBool},
				{Option: "maintainer", Param: "maintainer", Kind: listing.FilterString},
				{Option: "tagIds", Param: "tags", Kind: listing.FilterString},
			},
		},
		Add: &formsession.Schema{
			Fields: []formsession.Field{
				{Name: "id", Rules: []formsession.Rule{formsession.Required(), entityID(), formsession.MaxLength(featureIDMaxLength)}, Unique: true},
				{Name: "name", Rules: []formsession.Rule{formsession.Required(), formsession.MaxLength(featureNameMaxLength)}},
				{Name: "description", Rules: []formsession.Rule{formsession.MaxLength(descriptionMaxLength)}},
				{Name: "tags", Rules: []formsession.Rule{formsession.MinSelected(1)}},
				{Name: "variationType", Rules: []formsession.Rule{formsession.Required(), formsession.Integer()}, Default: itoa32(VariationBoolean)},
				{Name: "variations", Rules: []formsession.Rule{formsession.MinSelected(2)}, Default: []any{"true", "false"}},
				{Name: "rolloutWeights", Default: []any{"100", "0"}},
			},
			Cross: []formsession.CrossRule{formsession.SumTo100("rolloutWeights", "rolloutWeights")},
		},
		Update: &formsession.Schema{Fields: []formsession.Field{
			{Name: "name", Rules: []formsession.Rule{formsession.Required(), formsession.MaxLength(featureNameMaxLength)}},
			{Name: "description", Rules: []formsession.Rule{formsession.MaxLength(descriptionMaxLength)}},
			{Name: "tags", Rules: []formsession.Rule{formsession.MinSelected(1)}},
		}},
		Seed: func(f model.Feature) map[string]any {
			tags := make([]any, len(f.Tags))
			for i, t := range f.Tags {
				tags[i] = t
			}
			return map[string]any{"name": f.Name, "description": f.Description, "tags": tags}
		},
		BuildCreate: buildCreateFeature,
		BuildUpdate: func(st model.FormState) any {
			return UpdateFeatureCommand{
				Name:        dirtyString(st, "name"),
				Description: dirtyString(st, "description"),
				Tags:        dirtyStrings(st, "tags"),
			}
		},
		Actions: actions,
		Drills: []Drill[model.Feature]{{
			Resource: "eventrates",
			Query:    func(f model.Feature) any { return featureQuery{FeatureID: f.ID} },
		}},
		ID:    func(f model.Feature) string { return f.ID },
		Label: func(f model.Feature) string { return f.Name },
		Methods: Methods{
			List:   "ListFeatures",
			Get:    "GetFeature",
			Create: "CreateFeature",
			Update: "UpdateFeature",
			Actions: map[model.ConfirmationKind]string{
				model.ConfirmEnable:  "EnableFeature",
				model.ConfirmDisable: "DisableFeature",
				model.ConfirmArchive: "ArchiveFeature",
			},
			ItemsKey: "features",
			ItemKey:  "feature",
		},
	}
}

func buildCreateFeature(st model.FormState) any {
	values := formsession.Strings(st.Values["variations"])
	variations := make([]VariationInput, len(values))
	for i, v := range values {
		variations[i] = VariationInput{Value: v, Name: v}
	}
	var rollout []RolloutWeight
	for i, pct := range formsession.Float64s(st.Values["rolloutWeights"]) {
		if i >= len(variations) {
			break
		}
		rollout = append(rollout, RolloutWeight{Variation: i, Weight: int32(pct * rolloutScale)})
	}
	return CreateFeatureCommand{
		ID:                       formsession.String(st.Values["id"]),
		Name:                     formsession.String(st.Values["name"]),
		Description:              formsession.String(st.Values["description"]),
		Tags:                     formsession.Strings(st.Values["tags"]),
		VariationType:            formsession.Int32(st.Values["variationType"]),
		Variations:               variations,
		DefaultRollout:           rollout,
		DefaultOffVariationIndex: max(len(variations)-1, 0),
	}
}

// Experiments compare variations of a feature against goals.
func Experiments() *Descriptor[model.Experiment] {
	return &Descriptor[model.Experiment]{
		Name: "experiments",
		List: listing.Descriptor{
			Resource: "experiments",
			PageSize: listing.DefaultPageSize,
			Sort:     sorting.Standard("CREATED_AT", "NAME", byNameDesc, false),
			Filters: []listing.Filter{
				{Option: "status", Param: "status", Kind: listing.FilterNumber},
				{Option: "archived", Param: "archived", Kind: listing.FilterBool},
				{Option: "maintainer", Param: "maintainer", Kind: listing.FilterString},
			},
		},
		Add: &formsession.Schema{Fields: []formsession.Field{
			{Name: "name", Rules: []formsession.Rule{formsession.Required(), formsession.MaxLength(nameMaxLength)}},
			{Name: "description", Rules: []formsession.Rule{formsession.MaxLength(descriptionMaxLength)}},
			{Name: "featureId", Rules: []formsession.Rule{formsession.Required()}},
			{Name: "goalIds", Rules: []formsession.Rule{formsession.MinSelected(1)}},
			{Name: "startAt", Rules: []formsession.Rule{formsession.Required(), formsession.Integer()}},
			{Name: "stopAt", Rules: []formsession.Rule{formsession.Required(), formsession.Integer()}},
		}},
		Update: &formsession.Schema{Fields: []formsession.Field{
			{Name: "name", Rules: []formsession.Rule{formsession.Required(), formsession.MaxLength(nameMaxLength)}},
			{Name: "description", Rules: []formsession.Rule{formsession.MaxLength(descriptionMaxLength)}},
		}},
		Seed: func(e model.Experiment) map[string]any {
			return map[string]any{"name": e.Name, "description": e.Description}
		},
		BuildCreate: func(st model.FormState) any {
			return CreateExperimentCommand{
				Name:        formsession.String(st.Values["name"]),
				Description: formsession.String(st.Values["description"]),
				FeatureID:   formsession.String(st.Values["featureId"]),
				GoalIDs:     formsession.Strings(st.Values["goalIds"]),
				StartAt:     formsession.Int64(st.Values["startAt"]),
				StopAt:      formsession.Int64(st.Values["stopAt"]),
			}
		},
		BuildUpdate: func(st model.FormState) any {
			return UpdateExperimentCommand{
				Name:        dirtyString(st, "name"),
				Description: dirtyString(st, "description"),
			}
		},
		Actions: []Action[model.Experiment]{archivable(func(e model.Experiment) bool { return e.Archived })},
		ID:      func(e model.Experiment) string { return e.ID },
		Label:   func(e model.Experiment) string { return e.Name },
		Methods: Methods{
			List:   "ListExperiments",
			Get:    "GetExperiment",
			Create: "CreateExperiment",
			Update: "UpdateExperiment",
			Actions: map[model.ConfirmationKind]string{
				model.ConfirmArchive: "ArchiveExperiment",
			},
			ItemsKey: "experiments",
			ItemKey:  "experiment",
		},
	}
}

// Goals are the events experiments and auto operations measure. A goal in
// use cannot be deleted.
func Goals() *Descriptor[model.Goal] {
	return &Descriptor[model.Goal]{
		Name: "goals",
		List: listing.Descriptor{
			Resource: "goals",
			PageSize: listing.DefaultPageSize,
			Sort:     sorting.Standard("CREATED_AT", "NAME", byNameDesc, false),
			Filters: []listing.Filter{
				{Option: "status", Param: "isInUseStatus", Kind: listing.FilterTristate},
				{Option: "archived", Param: "archived", Kind: listing.FilterTristate},
			},
		},
		Add: &formsession.Schema{Fields: []formsession.Field{
			{Name: "id", Rules: []formsession.Rule{formsession.Required(), entityID(), formsession.MaxLength(featureIDMaxLength)}, Unique: true},
			{Name: "name", Rules: []formsession.Rule{formsession.Required(), formsession.MaxLength(featureNameMaxLength)}},
			{Name: "description", Rules: []formsession.Rule{formsession.MaxLength(descriptionMaxLength)}},
		}},
		Update: &formsession.Schema{Fields: []formsession.Field{
			{Name: "name", Rules: []formsession.Rule{formsession.Required(), formsession.MaxLength(featureNameMaxLength)}},
			{Name: "description", Rules: []formsession.Rule{formsession.MaxLength(descriptionMaxLength)}},
		}},
		Seed: func(g model.Goal) map[string]any {
			return map[string]any{"id": g.ID, "name": g.Name, "description": g.Description}
		},
		BuildCreate: func(st model.FormState) any {
			return CreateGoalCommand{
				ID:          formsession.String(st.Values["id"]),
				Name:        formsession.String(st.Values["name"]),
				Description: formsession.String(st.Values["description"]),
			}
		},
		BuildUpdate: func(st model.FormState) any {
			return UpdateGoalCommand{
				Name:        dirtyString(st, "name"),
				Description: dirtyString(st, "description"),
			}
		},
		Actions: []Action[model.Goal]{
			archivable(func(g model.Goal) bool { return g.Archived }),
			{Kind: model.ConfirmDelete, Applies: func(g model.Goal) bool { return !g.IsInUse }},
		},
		ID:    func(g model.Goal) string { return g.ID },
		Label: func(g model.Goal) string { return g.Name },
		Methods: Methods{
			List:   "ListGoals",
			Get:    "GetGoal",
			Create: "CreateGoal",
			Update: "UpdateGoal",
			Actions: map[model.ConfirmationKind]string{
				model.ConfirmArchive: "ArchiveGoal",
				model.ConfirmDelete:  "DeleteGoal",
			},
			ItemsKey: "goals",
			ItemKey:  "goal",
		},
	}
}

// EventRates are a feature's event-rate auto operations. The list is scoped
// by the featureId option. The threshold is edited as a percentage and
// stored as a ratio.
func EventRates() *Descriptor[model.EventRateRule] {
	clauseFields := []formsession.Field{
		{Name: "variationId", Rules: []formsession.Rule{formsession.Required()}},
		{Name: "goalId", Rules: []formsession.Rule{formsession.Required()}},
		{Name: "minCount", Rules: []formsession.Rule{
			formsession.Required(), formsession.Integer(), formsession.Range(1, eventRateMaxMinCount),
		}},
		{Name: "threadsholdRate", Rules: []formsession.Rule{
			formsession.Required(), formsession.Number(), formsession.AboveUpTo(0, 100),
		}},
		{Name: "operator", Rules: []formsession.Rule{formsession.Required(), formsession.Integer()}, Default: itoa32(model.OperatorGreaterOrEqual)},
	}
	add := append([]formsession.Field{
		{Name: "featureId", Rules: []formsession.Rule{formsession.Required()}},
	}, clauseFields...)

	return &Descriptor[model.EventRateRule]{
		Name: "eventrates",
		List: listing.Descriptor{
			Resource: "eventrates",
			PageSize: listing.DefaultPageSize,
			Sort: sorting.NewTable(sorting.DefaultToken, byCreatedDesc, []sorting.Entry{
				{Token: sorting.CreatedAtAsc, Spec: model.SortSpec{OrderBy: "CREATED_AT", Direction: model.SortASC}},
				{Token: sorting.CreatedAtDesc, Spec: byCreatedDesc},
			}),
			Filters: []listing.Filter{
				{Option: "featureId", Param: "featureId", Kind: listing.FilterString},
			},
		},
		Add:    &formsession.Schema{Fields: add},
		Update: &formsession.Schema{Fields: clauseFields},
		AddSeed: func(options model.SearchOptions) map[string]any {
			if id, ok := options["featureId"].(string); ok && id != "" {
				return map[string]any{"featureId": id}
			}
			return nil
		},
		Seed: func(r model.EventRateRule) map[string]any {
			return map[string]any{
				"featureId":       r.FeatureID,
				"variationId":     r.VariationID,
				"goalId":          r.GoalID,
				"minCount":        strconv.FormatInt(r.MinCount, 10),
				"threadsholdRate": formsession.RatioToPercent(r.ThreadsholdRate),
				"operator":        itoa32(r.Operator),
			}
		},
		BuildCreate: func(st model.FormState) any {
			return CreateEventRateCommand{
				FeatureID: formsession.String(st.Values["featureId"]),
				Clause:    eventRateClause(st),
			}
		},
		BuildUpdate: func(st model.FormState) any {
			return UpdateEventRateCommand{Clause: eventRateClause(st)}
		},
		Actions: []Action[model.EventRateRule]{{Kind: model.ConfirmDelete}},
		ID:      func(r model.EventRateRule) string { return r.ID },
		Label:   func(r model.EventRateRule) string { return r.GoalID },
		Methods: Methods{
			List:   "ListEventRateRules",
			Get:    "GetEventRateRule",
			Create: "CreateEventRateRule",
			Update: "UpdateEventRateRule",
			Actions: map[model.ConfirmationKind]string{
				model.ConfirmDelete: "DeleteEventRateRule",
			},
			ItemsKey: "eventRateRules",
			ItemKey:  "eventRateRule",
		},
	}
}

// eventRateClause sends the whole clause; the platform replaces clauses
// rather than patching them.
func eventRateClause(st model.FormState) EventRateClause {
	return EventRateClause{
		VariationID:     formsession.String(st.Values["variationId"]),
		GoalID:          formsession.String(st.Values["goalId"]),
		MinCount:        formsession.Int64(st.Values["minCount"]),
		ThreadsholdRate: formsession.PercentToRatio(formsession.Float(st.Values["threadsholdRate"])),
		Operator:        formsession.Int32(st.Values["operator"]),
	}
}
