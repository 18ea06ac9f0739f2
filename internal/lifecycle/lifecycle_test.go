package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateDerivation(t *testing.T) {
	require.Equal(t, StateActive, Flags{}.State())
	require.Equal(t, StateBin, Flags{Deleted: true}.State())
	require.Equal(t, StatePurged, Flags{Deleted: true, Purged: true}.State())
	// A purged flag always wins, even if the deleted flag was lost.
	require.Equal(t, StatePurged, Flags{Purged: true}.State())
}

func TestLegalTransitions(t *testing.T) {
	binFlags, err := Apply(Flags{}, ActionSoftDelete)
	require.NoError(t, err)
	require.Equal(t, StateBin, binFlags.State())

	restored, err := Apply(binFlags, ActionRestore)
	require.NoError(t, err)
	require.Equal(t, StateActive, restored.State())

	purged, err := Apply(binFlags, ActionPurge)
	require.NoError(t, err)
	require.Equal(t, StatePurged, purged.State())
	require.True(t, purged.Deleted, "purged implies deleted")
}

func TestIllegalTransitions(t *testing.T) {
	cases := []struct {
		name   string
		flags  Flags
		action Action
	}{
		{"purge from active skips the bin", Flags{}, ActionPurge},
		{"restore from active", Flags{}, ActionRestore},
		{"soft delete from bin", Flags{Deleted: true}, ActionSoftDelete},
		{"purged is terminal for restore", Flags{Deleted: true, Purged: true}, ActionRestore},
		{"purged is terminal for purge", Flags{Deleted: true, Purged: true}, ActionPurge},
		{"purged is terminal for soft delete", Flags{Deleted: true, Purged: true}, ActionSoftDelete},
		{"unknown action", Flags{}, Action("BOGUS")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Apply(tc.flags, tc.action)
			require.ErrorIs(t, err, ErrIllegalTransition)
			require.Equal(t, tc.flags, out, "flags must be unchanged on rejection")
		})
	}
}

func TestSequenceIsSubsequenceOfActiveBinPurged(t *testing.T) {
	// Full walk: Active -> Bin -> Active -> Bin -> Purged.
	f := Flags{}
	var err error
	f, err = Apply(f, ActionSoftDelete)
	require.NoError(t, err)
	f, err = Apply(f, ActionRestore)
	require.NoError(t, err)
	f, err = Apply(f, ActionSoftDelete)
	require.NoError(t, err)
	f, err = Apply(f, ActionPurge)
	require.NoError(t, err)
	require.Equal(t, StatePurged, f.State())

	_, err = Apply(f, ActionRestore)
	require.ErrorIs(t, err, ErrIllegalTransition)
}
