package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/filmtaste/internal/analysis"
)

func TestEntityQuery(t *testing.T) {
	tests := []struct {
		class    analysis.EntityClass
		contains string
		role     interface{}
	}{
		{class: analysis.EntityActor, contains: "PARTICIPATED_IN", role: analysis.RoleActor},
		{class: analysis.EntityDirector, contains: "PARTICIPATED_IN", role: analysis.RoleDirector},
		{class: analysis.EntityGenre, contains: "HAS_GENRE"},
		{class: analysis.EntityCountry, contains: "PRODUCED_IN"},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			query, params, err := entityQuery(42, tt.class)
			require.NoError(t, err)
			assert.Contains(t, query, tt.contains)
			assert.Equal(t, int64(42), params["movieId"])
			assert.Equal(t, tt.role, params["role"])
		})
	}

	_, _, err := entityQuery(42, analysis.EntityClass("studio"))
	assert.ErrorIs(t, err, analysis.ErrUnknownEntityClass)
}
