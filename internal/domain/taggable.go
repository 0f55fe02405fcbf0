package domain

import "slices"

// Taggable is implemented by records carrying a tag set.
type Taggable interface {
	Tags() []string
	SetTags(tagIDs []string)
}

// AddTag attaches tagID to t.
func AddTag(t Taggable, tagID string) error {
	tags := t.Tags()
	if slices.Contains(tags, tagID) {
		return ErrTagAlreadyAdded
	}
	t.SetTags(append(slices.Clone(tags), tagID))
	return nil
}

// RemoveTag detaches tagID from t.
func RemoveTag(t Taggable, tagID string) error {
	tags := t.Tags()
	idx := slices.Index(tags, tagID)
	if idx < 0 {
		return ErrTagAlreadyRemoved
	}
	t.SetTags(slices.Delete(slices.Clone(tags), idx, idx+1))
	return nil
}

func (e *Entity) Tags() []string { return e.TagIDs }
func (e *Entity) SetTags(ids []string) { e.TagIDs = ids }
func (t *Transaction) Tags() []string { return t.TagIDs }
func (t *Transaction) SetTags(ids []string) { t.TagIDs = ids }
func (i *Invoice) Tags() []string { return i.TagIDs }
func (i *Invoice) SetTags(ids []string) { i.TagIDs = ids }
func (s *Split) Tags() []string { return s.TagIDs }
func (s *Split) SetTags(ids []string) { s.TagIDs = ids }
