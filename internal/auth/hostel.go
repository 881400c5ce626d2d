package auth

import (
	"context"
)

// HostelOwnerLookup returns the landlord owning a hostel; found is false for unknown hostels.
type HostelOwnerLookup interface {
	HostelLandlord(ctx context.Context, hostelID string) (landlordID string, found bool, err error)
}

// HostelChecker validates hostel ownership.
type HostelChecker struct {
	lookup HostelOwnerLookup
}

// NewHostelChecker constructs a HostelChecker.
func NewHostelChecker(lookup HostelOwnerLookup) *HostelChecker {
	if lookup == nil {
		return nil
	}
	return &HostelChecker{lookup: lookup}
}

// EnsureHostelLandlord verifies the hostel belongs to landlordID.
// Empty ids are not checked.
func (c *HostelChecker) EnsureHostelLandlord(ctx context.Context, landlordID, hostelID string) error {
	if c == nil || c.lookup == nil {
		return nil
	}
	if landlordID == "" || hostelID == "" {
		return nil
	}
	owner, found, err := c.lookup.HostelLandlord(ctx, hostelID)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	if owner != landlordID {
		return ErrLandlordMismatch
	}
	return nil
}
