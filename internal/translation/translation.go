// Package translation models the grouping of per-language flash variants
// under one logical incident.
package translation

import (
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/holte-dev/safetyflash/internal/model"
)

// GroupRootID resolves the translation-group root for a flash: its group
// pointer when set, otherwise the flash itself.
func GroupRootID(f *model.Flash) uuid.UUID {
	if f.TranslationGroupID != nil {
		return *f.TranslationGroupID
	}
	return f.ID
}

// NewVariant builds a language variant of root. Immutable incident facts
// (type, site, occurrence time, images) are copied; translatable text fields
// stay blank for re-entry. Variants always start in Draft and repeat review —
// the caller records that choice in the audit trail so reviewers can tell a
// translation from a new incident.
func NewVariant(root *model.Flash, lang string, createdBy uuid.UUID, now time.Time) (*model.Flash, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	groupID := GroupRootID(root)
	return &model.Flash{
		ID:         id,
		Type:       root.Type,
		State:      model.StateDraft,
		CreatedBy:  createdBy,
		SiteID:     root.SiteID,
		OccurredAt: root.OccurredAt,
		ImageRefs:  append([]string(nil), root.ImageRefs...),

		Language:           lang,
		TranslationGroupID: &groupID,

		StandaloneInvestigation: root.StandaloneInvestigation,
		CreatedAt:               now,
		UpdatedAt:               now,
	}, nil
}
