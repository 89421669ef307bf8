package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/conductor/internal/config"
)

func validationFixture() (fakeResolver, *fakeGate, StepTypes) {
	agents := fakeResolver{
		"developer": &fakeAgent{name: "developer"},
		"reviewer":  &fakeAgent{name: "reviewer"},
	}
	gate := &fakeGate{known: map[string]bool{
		"domain_validation": true,
		"security":          true,
	}}
	return agents, gate, StepTypesFromConfig(testEngineConfig())
}

func TestValidate(t *testing.T) {
	agents, gate, types := validationFixture()

	tests := []struct {
		name    string
		def     *WorkflowDefinition
		wantErr error
	}{
		{
			name: "valid definition",
			def: &WorkflowDefinition{
				Name:   "ok",
				Inputs: []string{"feature_name"},
				Steps: []StepSpec{
					{
						Type:    TypeCreateComponent,
						Agent:   "developer",
						Params:  map[string]any{"name": "${feature_name}"},
						Outputs: []string{"files"},
					},
					{
						Type:          TypeReviewCode,
						Agent:         "reviewer",
						Params:        map[string]any{"files": "${files}"},
						RequireReview: true,
						ReviewType:    "security",
					},
				},
			},
		},
		{
			name: "unknown agent",
			def: &WorkflowDefinition{
				Name:  "bad_agent",
				Steps: []StepSpec{{Type: TypeCreateComponent, Agent: "ghost"}},
			},
			wantErr: ErrUnknownAgent,
		},
		{
			name: "unknown step type",
			def: &WorkflowDefinition{
				Name:  "bad_type",
				Steps: []StepSpec{{Type: "teleport", Agent: "developer"}},
			},
			wantErr: ErrUnknownStepType,
		},
		{
			name: "unknown review type",
			def: &WorkflowDefinition{
				Name: "bad_review",
				Steps: []StepSpec{{
					Type:          TypeCreateComponent,
					Agent:         "developer",
					RequireReview: true,
					ReviewType:    "vibes",
				}},
			},
			wantErr: ErrUnknownReviewType,
		},
		{
			name: "reference produced by later step",
			def: &WorkflowDefinition{
				Name: "backwards",
				Steps: []StepSpec{
					{
						Type:   TypeFixIssue,
						Agent:  "developer",
						Params: map[string]any{"ref": "${x}"},
					},
					{
						Type:    TypeCreateComponent,
						Agent:   "developer",
						Outputs: []string{"x"},
					},
				},
			},
			wantErr: ErrUnresolvedReference,
		},
		{
			name: "reference satisfied by declared input",
			def: &WorkflowDefinition{
				Name:   "inputs",
				Inputs: []string{"issue_id"},
				Steps: []StepSpec{{
					Type:   TypeFixIssue,
					Agent:  "developer",
					Params: map[string]any{"issue": "${issue_id}"},
				}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.def, agents, gate, types)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidate_CollectsAllIssues(t *testing.T) {
	agents, gate, types := validationFixture()

	def := &WorkflowDefinition{
		Name: "multi",
		Steps: []StepSpec{
			{Type: "teleport", Agent: "ghost", Params: map[string]any{"ref": "${nope}"}},
		},
	}

	err := Validate(def, agents, gate, types)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Issues, 3)
}

func TestDefinitionsFromConfig(t *testing.T) {
	defs := DefinitionsFromConfig(map[string]config.WorkflowConfig{
		"create_feature": {
			Inputs: []string{"feature_name"},
			Steps: []config.StepConfig{
				{
					Type:          "create_component",
					Agent:         "developer",
					Params:        map[string]any{"name": "${feature_name}"},
					RequireReview: true,
					ReviewType:    "domain_validation",
					Outputs:       []string{"files"},
				},
			},
		},
	})

	require.Len(t, defs, 1)
	def := defs["create_feature"]
	require.NotNil(t, def)
	assert.Equal(t, "create_feature", def.Name)
	assert.Equal(t, []string{"feature_name"}, def.Inputs)
	require.Len(t, def.Steps, 1)
	assert.True(t, def.Steps[0].RequireReview)
	assert.Equal(t, "domain_validation", def.Steps[0].ReviewType)
}
