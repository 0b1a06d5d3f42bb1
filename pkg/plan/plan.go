// Package plan defines the ordered action list a solve produces and the
// confirmation-prompt-suppression rule, the Go equivalent of action-solver.c's
// struct action_stack and confirm_action_stack_if_needed.
package plan

import "github.com/mindmaze-labs/mmpack-go/pkg/pkgmeta"

// Kind is the type of one planned action, the Go equivalent of the
// INSTALL_PKG/REMOVE_PKG/UPGRADE_PKG action enum.
type Kind int

const (
	Install Kind = iota
	Remove
	Upgrade
)

func (k Kind) String() string {
	switch k {
	case Install:
		return "install"
	case Remove:
		return "remove"
	case Upgrade:
		return "upgrade"
	default:
		return "unknown"
	}
}

// Action is one step of a Plan: install a new package, remove an installed
// one, or upgrade/downgrade one installed package to another version.
type Action struct {
	Kind   Kind
	Pkg    *pkgmeta.Record // Install/Remove: the package; Upgrade: the new version
	OldPkg *pkgmeta.Record // Upgrade only: the version being replaced
}

// IsDowngrade reports whether an Upgrade action is in fact a downgrade
// (OldPkg newer than Pkg), mirroring confirm_action_stack_if_needed's
// UPGRADE-vs-DOWNGRADE labeling by version comparison.
func (a Action) IsDowngrade() bool {
	if a.Kind != Upgrade {
		return false
	}
	return pkgmeta.CompareVersions(a.Pkg.Version, a.OldPkg.Version) < 0
}

// Label returns the action's display verb ("install", "remove", "upgrade",
// "downgrade"), with a trailing "*" if the target package is a ghost
// (referenced but not available from any configured repository), the Go
// equivalent of confirm_action_stack_if_needed's per-entry formatting.
func (a Action) Label() string {
	verb := a.Kind.String()
	if a.Kind == Upgrade && a.IsDowngrade() {
		verb = "downgrade"
	}
	if a.Pkg != nil && a.Pkg.IsGhost() {
		verb += "*"
	}
	return verb
}

// Plan is the ordered sequence of actions a solve produced, the Go
// equivalent of struct action_stack (Go's append-based slice growth
// replaces the manual DEFAULT_STACK_SZ resize loop).
type Plan struct {
	Actions []Action
}

// IsEmpty reports whether the plan has nothing to do.
func (p *Plan) IsEmpty() bool {
	return p == nil || len(p.Actions) == 0
}

// NeedsConfirmation reports whether the plan should be shown to the user
// for confirmation before being applied. requestedCount is the number of
// packages explicitly named in the request. The prompt is skipped if and
// only if the number of actions exactly equals the number of explicitly
// requested packages (e.g. "install already-satisfied package" or "remove
// a single leaf package" are silently applied; anything that pulls in
// extra dependencies or removals is confirmed).
func (p *Plan) NeedsConfirmation(requestedCount int) bool {
	if p.IsEmpty() {
		return false
	}
	return len(p.Actions) != requestedCount
}
