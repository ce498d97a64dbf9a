package sync

// State holds the variables that decide what happens to one entry.
type State struct {
	Excluded  bool // relative path is inside an excluded subtree
	SrcDir    bool // source entry is a directory
	DstExists bool // destination entry exists
	DstDir    bool // destination entry is a directory
	Same      bool // file contents are byte-identical (file/file only)
}

// Action is the mirroring step chosen for an entry.
type Action int

const (
	ActionSkip      Action = iota // excluded, untouched
	ActionDescend                 // dir exists on both sides, recurse
	ActionCreateDir               // dir missing in destination
	ActionCopy                    // file missing in destination
	ActionUpdate                  // file differs
	ActionKeep                    // file identical, no-op
	ActionReplace                 // destination holds the other kind
	ActionRemove                  // destination-only orphan
)

var actionNames = [...]string{
	ActionSkip:      "skip",
	ActionDescend:   "descend",
	ActionCreateDir: "mkdir",
	ActionCopy:      "copy",
	ActionUpdate:    "update",
	ActionKeep:      "keep",
	ActionReplace:   "replace",
	ActionRemove:    "remove",
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return "unknown"
	}
	return actionNames[a]
}

// MarshalYAML renders the action by name.
func (a Action) MarshalYAML() (any, error) {
	return a.String(), nil
}

// Mutates reports whether the action changes the destination.
func (a Action) Mutates() bool {
	switch a {
	case ActionCreateDir, ActionCopy, ActionUpdate, ActionReplace, ActionRemove:
		return true
	}
	return false
}

// Action returns the step for a source entry in this state. Orphans never
// reach here: they have no source entry and are always ActionRemove unless
// excluded.
func (s State) Action() Action {
	if s.Excluded {
		return ActionSkip
	}
	if !s.DstExists {
		if s.SrcDir {
			return ActionCreateDir
		}
		return ActionCopy
	}
	if s.SrcDir != s.DstDir {
		return ActionReplace
	}
	if s.SrcDir {
		return ActionDescend
	}
	if s.Same {
		return ActionKeep
	}
	return ActionUpdate
}
