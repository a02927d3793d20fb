package resources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kolo/xmlrpc"
	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/services"
	"github.com/release-engineering/greenwave-sub000/services/cache"
	"github.com/release-engineering/greenwave-sub000/utils"
	"go.uber.org/zap"
)

// caller is the XML-RPC call surface used by KojiClient
type caller interface {
	Call(serviceMethod string, args interface{}, reply interface{}) error
}

// KojiConfig configures the Koji hub client
type KojiConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxElapsed time.Duration
}

// KojiClient reads build metadata from a Koji hub. Builds never change once
// completed, so their attributes are kept in the cache store.
type KojiClient struct {
	url        string
	rpc        caller
	store      cache.Store
	maxElapsed time.Duration
	logger     *zap.Logger
}

// NewKojiClient creates a client of the Koji hub at cfg.BaseURL
func NewKojiClient(cfg KojiConfig, store cache.Store, logger *zap.Logger) (*KojiClient, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout

	rpc, err := xmlrpc.NewClient(cfg.BaseURL, transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create Koji client: %w", err)
	}
	return newKojiClient(cfg, rpc, store, logger), nil
}

func newKojiClient(cfg KojiConfig, rpc caller, store cache.Store, logger *zap.Logger) *KojiClient {
	if store == nil {
		store = cache.NoopStore{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KojiClient{
		url:        cfg.BaseURL,
		rpc:        rpc,
		store:      store,
		maxElapsed: cfg.MaxElapsed,
		logger:     logger,
	}
}

// call retries transport failures; faults raised by the hub are final
func (k *KojiClient) call(ctx context.Context, method string, args interface{}, reply interface{}) error {
	return utils.Retry(ctx, k.maxElapsed, k.logger, func() error {
		err := k.rpc.Call(method, args, reply)
		if err == nil {
			return nil
		}
		var fault xmlrpc.FaultError
		if errors.As(err, &fault) {
			return backoff.Permanent(err)
		}
		return services.WrapExternal("Could not reach Koji", err)
	})
}

func buildCacheKey(nvr string) string {
	return "greenwave.resources:koji_build|" + nvr
}

func taskTargetCacheKey(taskID int64) string {
	return "greenwave.resources:koji_task_target|" + strconv.FormatInt(taskID, 10)
}

// Build returns the attributes of a build. Unknown builds fail with
// services.ErrBuildNotFound.
func (k *KojiClient) Build(ctx context.Context, nvr string) (models.Build, error) {
	key := buildCacheKey(nvr)
	if data, ok, err := k.store.Get(ctx, key); err != nil {
		k.logger.Warn("koji build cache lookup failed", zap.String("nvr", nvr), zap.Error(err))
	} else if ok {
		var build models.Build
		if err := cache.Decode(data, &build); err == nil {
			return build, nil
		}
	}

	k.logger.Debug("getting koji build", zap.String("nvr", nvr))
	var reply map[string]interface{}
	if err := k.call(ctx, "getBuild", nvr, &reply); err != nil {
		var fault xmlrpc.FaultError
		if errors.As(err, &fault) {
			return models.Build{}, fmt.Errorf("Failed to get Koji build for %q: %s (code: %d)", nvr, fault.String, fault.Code)
		}
		return models.Build{}, err
	}
	if len(reply) == 0 {
		return models.Build{}, fmt.Errorf("%w: %q at %q", services.ErrBuildNotFound, nvr, k.url)
	}

	build := models.Build{
		NVR:          nvr,
		TaskID:       toInt64(reply["task_id"]),
		Source:       buildSource(reply),
		CreationTime: toString(reply["creation_time"]),
	}

	if data, err := cache.Encode(build); err == nil {
		if err := k.store.Set(ctx, key, data); err != nil {
			k.logger.Warn("failed to cache koji build", zap.String("nvr", nvr), zap.Error(err))
		}
	}
	return build, nil
}

// BuildTaskID returns the id of the task that produced the build, zero for
// imported builds
func (k *KojiClient) BuildTaskID(ctx context.Context, nvr string) (int64, error) {
	build, err := k.Build(ctx, nvr)
	if err != nil {
		return 0, err
	}
	return build.TaskID, nil
}

// BuildTarget returns the build target requested by a build task, or an
// empty string if the task request carries none
func (k *KojiClient) BuildTarget(ctx context.Context, taskID int64) (string, error) {
	key := taskTargetCacheKey(taskID)
	if data, ok, err := k.store.Get(ctx, key); err == nil && ok {
		var target string
		if err := cache.Decode(data, &target); err == nil {
			return target, nil
		}
	}

	k.logger.Debug("getting koji task request", zap.Int64("task_id", taskID))
	var request []interface{}
	if err := k.call(ctx, "getTaskRequest", taskID, &request); err != nil {
		var fault xmlrpc.FaultError
		if errors.As(err, &fault) {
			return "", fmt.Errorf("Failed to get Koji task request ID %d: %s (code: %d)", taskID, fault.String, fault.Code)
		}
		return "", err
	}

	var target string
	if len(request) > 1 {
		target, _ = request[1].(string)
	}
	if data, err := cache.Encode(target); err == nil {
		_ = k.store.Set(ctx, key, data)
	}
	return target, nil
}

// SourceCoordinates returns the SCM namespace, name and revision the build
// was made from
func (k *KojiClient) SourceCoordinates(ctx context.Context, nvr string) (models.SCM, error) {
	build, err := k.Build(ctx, nvr)
	if err != nil {
		return models.SCM{}, err
	}
	if build.Source == "" {
		return models.SCM{}, fmt.Errorf(
			"%w: failed to retrieve SCM URL from Koji build %q at %q (expected SCM URL in \"source\" attribute)",
			services.ErrNoSource, nvr, k.url)
	}
	scm, err := ParseSCMURL(build.Source)
	if err != nil {
		return models.SCM{}, fmt.Errorf("%w from Koji build %q at %q", err, nvr, k.url)
	}
	return scm, nil
}

// CreationTime returns when the build was created. An unparsable creation
// time is reported as the current time.
func (k *KojiClient) CreationTime(ctx context.Context, nvr string) (time.Time, error) {
	build, err := k.Build(ctx, nvr)
	if err != nil {
		return time.Time{}, err
	}
	created, err := models.ParseTimestamp(build.CreationTime)
	if err != nil {
		k.logger.Warn("could not parse koji build creation time",
			zap.String("nvr", nvr),
			zap.String("creation_time", build.CreationTime),
		)
		return time.Now().UTC(), nil
	}
	return created, nil
}

// ParseSCMURL parses a Koji build source such as
// "git+https://src.example.com/rpms/nethack.git#<revision>".
func ParseSCMURL(source string) (models.SCM, error) {
	u, err := url.Parse(source)
	if err != nil {
		return models.SCM{}, fmt.Errorf("%w %q: %v", services.ErrMalformedSource, source, err)
	}
	if u.Fragment == "" {
		return models.SCM{}, fmt.Errorf("%w %q (missing URL fragment with SCM revision information)", services.ErrMalformedSource, source)
	}

	parts := strings.Split(u.Path, "/")
	var namespace string
	if len(parts) >= 3 {
		namespace = parts[len(parts)-2]
	}
	return models.SCM{
		Namespace: namespace,
		Name:      strings.TrimSuffix(parts[len(parts)-1], ".git"),
		Revision:  u.Fragment,
	}, nil
}

func buildSource(build map[string]interface{}) string {
	if source := toString(build["source"]); source != "" {
		return source
	}
	extra, _ := build["extra"].(map[string]interface{})
	src, _ := extra["source"].(map[string]interface{})
	return toString(src["original_url"])
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	}
	return 0
}
