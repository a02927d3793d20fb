// Package resources retrieves the inputs of a decision from ResultsDB,
// WaiverDB, Koji and remote policy hosts.
package resources

import (
	"github.com/release-engineering/greenwave-sub000/services/policy"
	"github.com/release-engineering/greenwave-sub000/services/subjects"
)

const userAgent = "greenwave"

var (
	_ policy.ResultsSource  = (*ResultsRetriever)(nil)
	_ policy.BuildMetadata  = (*KojiClient)(nil)
	_ policy.RemoteFetcher  = (*HTTPFetcher)(nil)
	_ subjects.BuildTargets = (*KojiClient)(nil)
)
