package docstore

import (
	"context"
	"time"

	"snapchart-proxy/internal/model"
)

const usersCollection = "users"

// UserUpdate names the fields a patch is allowed to touch. Nil fields stay
// out of the mask and are left untouched in the store.
type UserUpdate struct {
	Email             *string
	AnalysesRemaining *int
	LastReset         *time.Time
}

func (u UserUpdate) fields() map[string]Value {
	fields := map[string]Value{}
	if u.Email != nil {
		fields["email"] = stringValue(*u.Email)
	}
	if u.AnalysesRemaining != nil {
		fields["analysesRemaining"] = integerValue(*u.AnalysesRemaining)
	}
	if u.LastReset != nil {
		fields["lastReset"] = timestampValue(*u.LastReset)
	}

	return fields
}

// GetUser returns the record plus the store's revision tag for the document,
// used as a precondition on conditional patches. found is false when the
// user has never been seen.
func (c *Client) GetUser(ctx context.Context, uid string) (model.UserRecord, string, bool, error) {
	doc, found, err := c.getDocument(ctx, usersCollection, uid)
	if err != nil || !found {
		return model.UserRecord{}, "", false, err
	}

	return decodeUserRecord(doc.Fields), doc.UpdateTime, true, nil
}

func (c *Client) CreateUser(ctx context.Context, uid string, rec model.UserRecord) error {
	return c.createDocument(ctx, usersCollection, uid, encodeUserRecord(rec))
}

// PatchUser applies update with field-mask semantics. A non-empty updateTime
// makes the patch conditional on that revision; model.ErrPreconditionFailed
// signals the document moved underneath the caller.
func (c *Client) PatchUser(ctx context.Context, uid string, update UserUpdate, updateTime string) error {
	return c.patchDocument(ctx, usersCollection, uid, update.fields(), updateTime)
}

// UpsertUser writes the full record: patch when the document exists, create
// otherwise.
func (c *Client) UpsertUser(ctx context.Context, uid string, rec model.UserRecord) error {
	_, _, found, err := c.GetUser(ctx, uid)
	if err != nil {
		return err
	}

	if found {
		return c.patchDocument(ctx, usersCollection, uid, encodeUserRecord(rec), "")
	}

	return c.CreateUser(ctx, uid, rec)
}
