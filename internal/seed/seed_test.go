package seed

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/repository/memory"
)

const sample = `
organizations:
  - id: fed
    name: Federation
    kind: federation
    parent: conf
  - id: local
    name: Local
    kind: local
    parent: fed
    auto_decline: true
  - id: conf
    name: Confederation
    kind: confederation
cities:
  - id: city-1
    name: One
    responsible: local
agents:
  - id: a1
    name: Ana
    email: " Ana@Local.Example "
    org: local
  - id: a2
    name: Bea
    email: bea@local.example
    org: local
    active: false
`

func TestParseAndApply(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	store := memory.NewStore()
	repos := store.Repositories()
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	res, err := f.Apply(ctx, repos, now)
	require.NoError(t, err)
	assert.Equal(t, Result{Organizations: 3, Cities: 1, Agents: 2, Settings: 1}, res)

	local, err := repos.Organizations.GetByID(ctx, "local")
	require.NoError(t, err)
	require.NotNil(t, local.ParentID)
	assert.Equal(t, "fed", *local.ParentID)
	assert.Equal(t, domain.OrgKindLocal, local.Kind)

	setting, err := repos.EscalationSettings.Get(ctx, "local")
	require.NoError(t, err)
	assert.True(t, setting.AutoDecline)
	assert.Equal(t, now, setting.UpdatedAt)

	city, err := repos.Cities.GetByID(ctx, "city-1")
	require.NoError(t, err)
	assert.Equal(t, "local", city.ResponsibleOrgID)

	active, err := repos.Agents.ListActiveByOrg(ctx, "local")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "ana@local.example", active[0].Email)
}

func TestParseRejectsBadReferences(t *testing.T) {
	cases := map[string]string{
		"unknown parent": `
organizations:
  - {id: l, kind: local, parent: ghost}
`,
		"parent not higher": `
organizations:
  - {id: a, kind: local}
  - {id: b, kind: local, parent: a}
`,
		"unknown kind": `
organizations:
  - {id: a, kind: region}
`,
		"confederation auto-decline": `
organizations:
  - {id: c, kind: confederation, auto_decline: true}
`,
		"city without org": `
cities:
  - {id: c1, responsible: nobody}
`,
		"unknown field": `
organisations: []
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseEmptyDocument(t *testing.T) {
	f, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Organizations)
}

func TestLoadShippedFixture(t *testing.T) {
	f, err := LoadFile("../../fixtures/hierarchy.yaml")
	require.NoError(t, err)
	assert.Len(t, f.Organizations, 4)
	assert.Len(t, f.Cities, 2)
}
