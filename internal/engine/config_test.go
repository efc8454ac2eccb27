package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectionConfigValidate(t *testing.T) {
	valid := func() *CollectionConfig {
		return &CollectionConfig{
			Rename:      map[string]string{"title": "name"},
			ForeignKeys: map[string]string{"department": "departments"},
			Links: map[string]LinkConfig{
				"award_ids": {Table: "employees_awards", SelfColumn: "employee_id", ForeignColumn: "award_id"},
			},
		}
	}

	t.Run("valid configuration passes", func(t *testing.T) {
		assert.NoError(t, valid().Validate("employees"))
	})

	cases := []struct {
		name   string
		mutate func(*CollectionConfig)
		detail string
	}{
		{
			name:   "rename to itself",
			mutate: func(c *CollectionConfig) { c.Rename["x"] = "x" },
			detail: "to itself",
		},
		{
			name:   "rename to empty name",
			mutate: func(c *CollectionConfig) { c.Rename["x"] = "" },
			detail: "empty field name",
		},
		{
			name:   "rename of the stable identifier",
			mutate: func(c *CollectionConfig) { c.Rename[SourceIDField] = "other" },
			detail: "not allowed",
		},
		{
			name: "two fields renamed to the same target",
			mutate: func(c *CollectionConfig) {
				c.Rename["a"] = "same"
				c.Rename["b"] = "same"
			},
			detail: "both rename",
		},
		{
			name: "rename cycle",
			mutate: func(c *CollectionConfig) {
				c.Rename["a"] = "b"
				c.Rename["b"] = "a"
			},
			detail: "collides",
		},
		{
			name: "rename chain",
			mutate: func(c *CollectionConfig) {
				c.Rename["a"] = "b"
				c.Rename["b"] = "c"
			},
			detail: "collides",
		},
		{
			name:   "nil redefine function",
			mutate: func(c *CollectionConfig) { c.Redefine = map[string]RedefineFunc{"x": nil} },
			detail: "no function",
		},
		{
			name:   "foreign key without collection",
			mutate: func(c *CollectionConfig) { c.ForeignKeys["boss"] = "" },
			detail: "references no collection",
		},
		{
			name: "field both foreign key and link",
			mutate: func(c *CollectionConfig) {
				c.ForeignKeys["award_ids"] = "awards"
			},
			detail: "both a foreign key and a link",
		},
		{
			name: "link without table",
			mutate: func(c *CollectionConfig) {
				c.Links["xs"] = LinkConfig{SelfColumn: "a", ForeignColumn: "b"}
			},
			detail: "no table",
		},
		{
			name: "link missing id columns",
			mutate: func(c *CollectionConfig) {
				c.Links["xs"] = LinkConfig{Table: "t", SelfColumn: "a"}
			},
			detail: "both id columns",
		},
		{
			name: "link with identical id columns",
			mutate: func(c *CollectionConfig) {
				c.Links["xs"] = LinkConfig{Table: "t", SelfColumn: "a", ForeignColumn: "a"}
			},
			detail: "same column",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)

			err := cfg.Validate("employees")
			assert.Error(t, err)

			var configErr *ConfigurationError
			assert.ErrorAs(t, err, &configErr)
			assert.Contains(t, err.Error(), tc.detail)
		})
	}
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "people", (&CollectionConfig{Table: "people"}).TableName("employees"))
	assert.Equal(t, "employees", (&CollectionConfig{}).TableName("employees"))
}
