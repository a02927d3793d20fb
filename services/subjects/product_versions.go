package subjects

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/services"
	"go.uber.org/zap"
)

// BuildTargets looks up the Koji build target a build was made for
type BuildTargets interface {
	// BuildTaskID fails with services.ErrBuildNotFound for unknown builds
	BuildTaskID(ctx context.Context, nvr string) (int64, error)
	BuildTarget(ctx context.Context, taskID int64) (string, error)
}

// Guesser derives product versions for subjects that do not state one
type Guesser struct {
	koji   BuildTargets
	logger *zap.Logger
}

// NewGuesser creates a Guesser. A nil koji disables build target lookups.
func NewGuesser(koji BuildTargets, logger *zap.Logger) *Guesser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guesser{koji: koji, logger: logger}
}

// ProductVersions returns the subject type's configured product versions,
// else versions derived from the Koji build target, else a guess based on
// the dist tag of the identifier. taskID may be zero when unknown.
// Only Koji transport failures are returned as errors.
func (g *Guesser) ProductVersions(ctx context.Context, subject *models.Subject, taskID int64) ([]string, error) {
	if pvs := subject.ProductVersions(); len(pvs) > 0 {
		return pvs, nil
	}

	if g.koji != nil && subject.IsKojiBuild() {
		pvs, err := g.fromKoji(ctx, subject, taskID)
		if err != nil {
			return nil, err
		}
		if len(pvs) > 0 {
			return pvs, nil
		}
	}

	if short, ok := subject.ShortProductVersion(); ok && short != "" {
		return g.guess(short, subject.IsKojiBuild()), nil
	}
	return []string{}, nil
}

func (g *Guesser) fromKoji(ctx context.Context, subject *models.Subject, taskID int64) ([]string, error) {
	if taskID == 0 {
		id, err := g.koji.BuildTaskID(ctx, subject.Identifier())
		if err != nil && !errors.Is(err, services.ErrBuildNotFound) {
			return nil, g.kojiError(err)
		}
		if id == 0 {
			return nil, nil
		}
		taskID = id
	}

	target, err := g.koji.BuildTarget(ctx, taskID)
	if err != nil {
		return nil, g.kojiError(err)
	}
	if target == "" {
		return nil, nil
	}
	if pvs := subject.ProductVersionsFromKojiBuildTarget(target); len(pvs) > 0 {
		return pvs, nil
	}
	return g.guess(target, true), nil
}

// kojiError keeps transport failures and drops Koji faults, which only mean
// the build target cannot be used for guessing
func (g *Guesser) kojiError(err error) error {
	if services.IsExternalError(err) {
		return err
	}
	g.logger.Warn("Failed to get product version from Koji", zap.Error(err))
	return nil
}

func (g *Guesser) guess(value string, kojiBuild bool) []string {
	if value == "rawhide" || strings.HasPrefix(value, "Fedora-Rawhide") {
		return []string{"fedora-rawhide"}
	}

	var prefix string
	switch {
	case strings.HasPrefix(value, "f") && kojiBuild:
		prefix = "fedora-"
	case strings.HasPrefix(value, "epel"):
		prefix = "epel-"
	case strings.HasPrefix(value, "el") && len(value) > 2 && isDigit(value[2]):
		prefix = "rhel-"
	case strings.HasPrefix(value, "rhel-") && len(value) > 5 && isDigit(value[5]):
		prefix = "rhel-"
	case strings.HasPrefix(value, "fc") || strings.HasPrefix(value, "Fedora"):
		prefix = "fedora-"
	default:
		g.logger.Warn("Failed to guess the product version", zap.String("value", value))
		return []string{}
	}

	if number, ok := versionNumber(value); ok {
		return []string{prefix + strconv.Itoa(number)}
	}
	g.logger.Warn("Failed to get the product version number", zap.String("value", value))
	return []string{}
}

var digitRuns = regexp.MustCompile(`\d+|\D+`)

// versionNumber returns the second token of value, where tokens are digit
// runs and the dash-separated parts of everything else
func versionNumber(value string) (int, bool) {
	var tokens []string
	for _, run := range digitRuns.FindAllString(value, -1) {
		if isDigit(run[0]) {
			tokens = append(tokens, run)
			continue
		}
		for _, part := range strings.Split(run, "-") {
			if part != "" {
				tokens = append(tokens, part)
			}
		}
	}
	if len(tokens) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(tokens[1])
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
