package pool

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// credentialRecord is the on-disk shape of Credential: every backend's
// fields in one record with omitempty, disambiguated by Kind. It is written
// as a nested "credential" object of each account record; the credential
// fields do not sit inline beside the account's id, email and timestamps.
type credentialRecord struct {
	Kind CredentialKind `json:"credentialKind"`

	RefreshToken      string     `json:"refreshToken,omitempty"`
	AccessToken       string     `json:"accessToken,omitempty"`
	AccessTokenExpiry *time.Time `json:"accessTokenExpiry,omitempty"`

	APIToken  string `json:"apiToken,omitempty"`
	MachineID string `json:"machineId,omitempty"`
	GhostMode bool   `json:"ghostMode,omitempty"`

	LongLivedToken string     `json:"longLivedToken,omitempty"`
	DerivedToken   string     `json:"derivedToken,omitempty"`
	DerivedExpiry  *time.Time `json:"derivedExpiry,omitempty"`
}

// accountRecord is the on-disk shape of one pool member, per §6. Tracker
// state (health/bucket/quota) is intentionally absent — it is in-memory
// only and reinitializes to defaults on restart.
type accountRecord struct {
	ID            string           `json:"id"`
	Email         string           `json:"email,omitempty"`
	Credential    credentialRecord `json:"credential"`
	AddedAt       time.Time        `json:"addedAt"`
	LastUsed      *time.Time       `json:"lastUsed"`
	Enabled       bool             `json:"enabled"`
	IsInvalid     bool             `json:"isInvalid"`
	InvalidReason *string          `json:"invalidReason"`
	CooldownUntil *time.Time       `json:"cooldownUntil"`
}

type fileShape struct {
	Accounts    []accountRecord `json:"accounts"`
	ActiveIndex int             `json:"activeIndex"`
}

func toRecord(a *Account) accountRecord {
	r := accountRecord{
		ID:      a.id,
		Email:   a.email,
		AddedAt: a.addedAt,
		Enabled: a.enabled,
		Credential: credentialRecord{
			Kind:           a.credential.Kind,
			RefreshToken:   a.credential.RefreshToken,
			AccessToken:    a.credential.AccessToken,
			APIToken:       a.credential.APIToken,
			MachineID:      a.credential.MachineID,
			GhostMode:      a.credential.GhostMode,
			LongLivedToken: a.credential.LongLivedToken,
			DerivedToken:   a.credential.DerivedToken,
		},
		IsInvalid: a.invalid,
	}
	if !a.credential.AccessTokenExpiry.IsZero() {
		r.Credential.AccessTokenExpiry = timestampPtr(a.credential.AccessTokenExpiry)
	}
	if !a.credential.DerivedExpiry.IsZero() {
		r.Credential.DerivedExpiry = timestampPtr(a.credential.DerivedExpiry)
	}
	if !a.lastUsed.IsZero() {
		r.LastUsed = timestampPtr(a.lastUsed)
	}
	if a.invalidReason != "" {
		reason := a.invalidReason
		r.InvalidReason = &reason
	}
	if !a.cooldownUntil.IsZero() {
		r.CooldownUntil = timestampPtr(a.cooldownUntil)
	}
	return r
}

func timestampPtr(t time.Time) *time.Time { return &t }

func fromRecord(r accountRecord, now time.Time) *Account {
	a := NewAccount(r.ID, r.Email, Credential{
		Kind:           r.Credential.Kind,
		RefreshToken:   r.Credential.RefreshToken,
		AccessToken:    r.Credential.AccessToken,
		APIToken:       r.Credential.APIToken,
		MachineID:      r.Credential.MachineID,
		GhostMode:      r.Credential.GhostMode,
		LongLivedToken: r.Credential.LongLivedToken,
		DerivedToken:   r.Credential.DerivedToken,
	}, r.AddedAt)
	if r.Credential.AccessTokenExpiry != nil {
		a.credential.AccessTokenExpiry = *r.Credential.AccessTokenExpiry
	}
	if r.Credential.DerivedExpiry != nil {
		a.credential.DerivedExpiry = *r.Credential.DerivedExpiry
	}
	a.enabled = r.Enabled
	a.invalid = r.IsInvalid
	if r.InvalidReason != nil {
		a.invalidReason = *r.InvalidReason
	}
	if r.LastUsed != nil {
		a.lastUsed = *r.LastUsed
	}
	if r.CooldownUntil != nil {
		a.cooldownUntil = *r.CooldownUntil
	}
	// Trackers (health/bucket/quota) reinitialize fresh relative to now —
	// they are in-memory only, not persisted.
	return a
}

func loadFile(path string) ([]*Account, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	var shape fileShape
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, 0, fmt.Errorf("corrupt pool file %s: %w", path, err)
	}
	now := time.Now()
	accounts := make([]*Account, len(shape.Accounts))
	for i, r := range shape.Accounts {
		accounts[i] = fromRecord(r, now)
	}
	activeIndex := shape.ActiveIndex
	if len(accounts) > 0 {
		activeIndex = ((activeIndex % len(accounts)) + len(accounts)) % len(accounts)
	} else {
		activeIndex = 0
	}
	return accounts, activeIndex, nil
}

// writeFile persists the whole document via temp-file + rename, so a crash
// mid-write can only ever leave the previous good file or a harmless
// orphaned temp file — never a half-written target (§5, §9).
func writeFile(path string, records []accountRecord, activeIndex int) error {
	shape := fileShape{Accounts: records, ActiveIndex: activeIndex}
	if shape.Accounts == nil {
		shape.Accounts = []accountRecord{}
	}
	data, err := json.MarshalIndent(shape, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
