package translation

import (
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/holte-dev/safetyflash/internal/model"
)

func TestGroupRootID(t *testing.T) {
	rootID := uuid.Must(uuid.NewV4())

	root := &model.Flash{ID: rootID}
	require.Equal(t, rootID, GroupRootID(root))

	member := &model.Flash{ID: uuid.Must(uuid.NewV4()), TranslationGroupID: &rootID}
	require.Equal(t, rootID, GroupRootID(member))
}

func TestNewVariant(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	creator := uuid.Must(uuid.NewV4())
	root := &model.Flash{
		ID:          uuid.Must(uuid.NewV4()),
		Type:        model.TypeRed,
		State:       model.StatePublished,
		CreatedBy:   uuid.Must(uuid.NewV4()),
		SiteID:      uuid.Must(uuid.NewV4()),
		Title:       "Crane near miss",
		Description: "long text",
		ImageRefs:   []string{"img/1.webp"},
		OccurredAt:  now.Add(-48 * time.Hour),
		Language:    "en",
	}

	v, err := NewVariant(root, "nb", creator, now)
	require.NoError(t, err)

	// Incident facts carry over.
	require.Equal(t, root.Type, v.Type)
	require.Equal(t, root.SiteID, v.SiteID)
	require.Equal(t, root.OccurredAt, v.OccurredAt)
	require.Equal(t, root.ImageRefs, v.ImageRefs)

	// Translatable text starts blank and the variant repeats review from Draft.
	require.Empty(t, v.Title)
	require.Empty(t, v.Description)
	require.Equal(t, model.StateDraft, v.State)

	require.Equal(t, "nb", v.Language)
	require.Equal(t, creator, v.CreatedBy)
	require.NotNil(t, v.TranslationGroupID)
	require.Equal(t, root.ID, *v.TranslationGroupID)

	// Copy, not alias.
	v.ImageRefs[0] = "mutated"
	require.Equal(t, "img/1.webp", root.ImageRefs[0])
}

func TestNewVariant_OfMemberJoinsSameGroup(t *testing.T) {
	now := time.Now()
	rootID := uuid.Must(uuid.NewV4())
	member := &model.Flash{
		ID:                 uuid.Must(uuid.NewV4()),
		Type:               model.TypeYellow,
		Language:           "nb",
		TranslationGroupID: &rootID,
	}

	v, err := NewVariant(member, "de", uuid.Must(uuid.NewV4()), now)
	require.NoError(t, err)
	require.Equal(t, rootID, *v.TranslationGroupID)
}
