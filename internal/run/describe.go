package run

import (
	"errors"
	"strings"

	"github.com/chojs23/kartkit/internal/backend"
	"github.com/chojs23/kartkit/internal/cli"
	"github.com/chojs23/kartkit/internal/conflict"
	"github.com/chojs23/kartkit/internal/engine"
	"github.com/chojs23/kartkit/internal/feature"
	"github.com/chojs23/kartkit/internal/graph"
	"github.com/chojs23/kartkit/internal/repostate"
)

// Describe turns err into a message for the user. Each error kind gets its
// own wording; the underlying error text follows for detail.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var backendErr *backend.Error
	switch {
	case errors.Is(err, conflict.ErrUnsupportedConflictKind):
		return "This merge has conflicts other than feature conflicts (for example schema changes). " +
			"They cannot be resolved here; resolve them with kart directly.\n" + err.Error()
	case errors.Is(err, conflict.ErrMalformedConflict):
		return "The conflict listing could not be read.\n" + err.Error()
	case errors.Is(err, feature.ErrMalformedDiff):
		return "The diff could not be read.\n" + err.Error()
	case errors.Is(err, graph.ErrGraphSync):
		return "The commit graph does not match the commit list, so history cannot be shown.\n" + err.Error()
	case errors.Is(err, engine.ErrNotMergeable):
		return "Not every conflict has a valid resolution.\n" + err.Error()
	case errors.Is(err, engine.ErrMissingVersion):
		return "That version of the feature does not exist on this side of the conflict.\n" + err.Error()
	case errors.Is(err, engine.ErrUndecidedField):
		return "Some fields need an explicit choice before the feature can be merged.\n" + err.Error()
	case errors.Is(err, engine.ErrSessionSubmitted):
		return "The resolutions were already sent; start a new resolve session to change them."
	case errors.Is(err, repostate.ErrNotMerging):
		return "There is no merge in progress."
	case errors.Is(err, repostate.ErrDirtyWorkingTree):
		return "The working copy has uncommitted changes. Commit or restore them before merging."
	case errors.Is(err, repostate.ErrNotRepository):
		return "Not a kart repository.\n" + err.Error()
	case errors.Is(err, backend.ErrNotInstalled):
		return "Kart is not installed or could not be found. Set backend.path in the config file or KARTKIT_BACKEND_PATH.\n" + err.Error()
	case errors.Is(err, backend.ErrUnsupportedVersion):
		return "The installed kart version is not supported.\n" + err.Error()
	case errors.Is(err, backend.ErrParse):
		return "Kart returned output that could not be understood.\n" + err.Error()
	case errors.As(err, &backendErr):
		msg := "Kart failed: " + strings.Join(backendErr.Args, " ")
		if text := backendErr.Message(); text != "" {
			msg += "\n" + text
		}
		if backendErr.NeedsCleanTree() {
			msg += "\nCommit or restore your changes first, then try again."
		}
		return msg
	case errors.Is(err, cli.ErrUsage):
		return err.Error() + "\n\n" + cli.Usage()
	default:
		return err.Error()
	}
}
