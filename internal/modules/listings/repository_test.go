package listings

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinodehi1978/resell-trap-sub000/internal/database"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db.Conn(), zerolog.Nop()))
	return db.Conn()
}

func TestRepository_ConditionTemplates(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	text, err := repo.GetConditionTemplate(domain.ConditionUsedGood)
	require.NoError(t, err)
	assert.Empty(t, text)

	require.NoError(t, repo.SaveConditionTemplate(domain.ConditionUsedGood, "動作確認済みの中古品です。"))
	require.NoError(t, repo.SaveConditionTemplate(domain.ConditionUsedLikeNew, "未使用に近い状態です。"))

	text, err = repo.GetConditionTemplate(domain.ConditionUsedGood)
	require.NoError(t, err)
	assert.Equal(t, "動作確認済みの中古品です。", text)

	// Saving again replaces, it does not duplicate.
	require.NoError(t, repo.SaveConditionTemplate(domain.ConditionUsedGood, "通常使用に伴う傷があります。"))

	templates, err := repo.ListConditionTemplates()
	require.NoError(t, err)
	require.Len(t, templates, 2)

	text, err = repo.GetConditionTemplate(domain.ConditionUsedGood)
	require.NoError(t, err)
	assert.Equal(t, "通常使用に伴う傷があります。", text)
}

func TestRepository_Presets(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	p, err := repo.GetPreset("B08XYZ1234")
	require.NoError(t, err)
	assert.Nil(t, p, "missing preset is nil, not an error")

	require.NoError(t, repo.SavePreset(&domain.ListingPreset{
		ASIN:            "B08XYZ1234",
		ConditionKey:    domain.ConditionUsedVeryGood,
		ConditionNote:   "箱付き、付属品完備",
		LeadTimeDays:    3,
		ShippingPattern: "2_3_days",
		MarginPct:       15,
	}))

	p, err = repo.GetPreset("B08XYZ1234")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, domain.ConditionUsedVeryGood, p.ConditionKey)
	assert.Equal(t, 3, p.LeadTimeDays)
	assert.InDelta(t, 15, p.MarginPct, 1e-9)
	assert.False(t, p.UpdatedAt.IsZero())

	// Saving the same ASIN overwrites in place.
	require.NoError(t, repo.SavePreset(&domain.ListingPreset{
		ASIN:            "B08XYZ1234",
		ConditionKey:    domain.ConditionUsedGood,
		LeadTimeDays:    5,
		ShippingPattern: "3_5_days",
		MarginPct:       20,
	}))

	p, err = repo.GetPreset("B08XYZ1234")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, domain.ConditionUsedGood, p.ConditionKey)
	assert.Equal(t, 5, p.LeadTimeDays)
	assert.InDelta(t, 20, p.MarginPct, 1e-9)
}
