package entities

import (
	"strings"
	"testing"

	"github.com/relloyd/stagesync/components"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	cat := Default()
	require.NoError(t, cat.Validate())
	assert.Equal(t, []string{"Schedule", "TimeEvent", "StaffMember", "Tag", "Task", "TaggedStaff", "TaggedTask", "ProviderCaseLog"}, cat.Names())
}

func TestCatalog_Select(t *testing.T) {
	cat := Default()
	sel, err := cat.Select("providercaselog", "Schedule")
	require.NoError(t, err)
	assert.Equal(t, []string{"Schedule", "ProviderCaseLog"}, sel.Names()) // catalog order wins
	_, err = cat.Select("Nope")
	assert.Error(t, err)
	all, err := cat.Select()
	require.NoError(t, err)
	assert.Len(t, all, len(cat))
}

func TestEntity_Validate(t *testing.T) {
	e := Schedule()
	e.WindowField = "Missing"
	assert.Error(t, e.Validate())
	e = ProviderCaseLog()
	e.ScopeKey = ""
	assert.Error(t, e.Validate())
	e = Tag()
	e.Source.Connection = ""
	assert.Error(t, e.Validate())
	e = Task()
	e.Keys = nil
	assert.Error(t, e.Validate())
}

func TestStaffMemberSelectsRawDeactivation(t *testing.T) {
	e := StaffMember()
	assert.Contains(t, e.Source.Select, "DeactivationDateUtc")
	assert.NotContains(t, e.Source.Select, "IsActive")
	assert.Contains(t, e.Source.Select, "Abbrev")
	assert.Equal(t, components.DeletePolicyRetain, e.DeletePolicy)
}

func TestDescribe(t *testing.T) {
	d := Task().Describe()
	assert.Equal(t, []string{"*"}, d.Tracked)
	assert.Equal(t, "all", d.Scope)
	assert.Equal(t, "retain", d.DeletePolicy)
	assert.Equal(t, "dim.Task", d.ProductionTable)
	assert.Equal(t, []string{"LineNumbers"}, ProviderCaseLog().Describe().Transforms)
}

func TestTaggedColumnsMatchTagNames(t *testing.T) {
	for _, col := range append(staffTagColumns, taskTagColumns...) {
		_, ok := TaggedStaff().Descriptor.Field(col)
		_, ok2 := TaggedTask().Descriptor.Field(col)
		assert.True(t, ok || ok2, col)
		parts := strings.SplitN(col, "_", 2)
		assert.Equal(t, col, components.TagColumnName(parts[0], parts[1]))
	}
}
