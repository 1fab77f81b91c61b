package finding

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pattonant/autopen2.0/internal/types"
)

func smbFinding() Finding {
	return Finding{
		PhaseOrigin: types.PhaseVulnScan,
		Target:      types.Target{Host: "10.0.0.5", Port: 445, Service: "smb"},
		Category:    CategoryCVE,
		RawEvidence: "SMBv1 enabled; host responds to MS17-010 probe",
		SeverityRaw: types.SeverityCritical,
		Confidence:  0.8,
	}
}

func TestStore_AddAssignsIdentity(t *testing.T) {
	store := NewStore()

	id, err := store.Add(smbFinding())
	require.NoError(t, err)
	require.False(t, id.IsZero())

	stored, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, stored.Status)
	assert.False(t, stored.DiscoveredAt.IsZero())
}

func TestStore_AddRejectsInvalid(t *testing.T) {
	store := NewStore()

	f := smbFinding()
	f.Confidence = 1.5
	_, err := store.Add(f)
	require.Error(t, err)
	assert.Equal(t, types.FINDING_INVALID, types.CodeOf(err))
	assert.Equal(t, 0, store.Count())
}

func TestStore_DuplicateInsertRefreshes(t *testing.T) {
	store := NewStore()

	first := smbFinding()
	first.Confidence = 0.6
	firstID, err := store.Add(first)
	require.NoError(t, err)

	// Same target, category and evidence: no new row, confidence refreshed
	// upward, timestamp refreshed forward.
	dup := smbFinding()
	dup.Confidence = 0.9
	dup.DiscoveredAt = time.Now().Add(time.Minute)
	dupID, err := store.Add(dup)
	require.NoError(t, err)

	assert.Equal(t, firstID, dupID)
	assert.Equal(t, 1, store.Count())

	stored, err := store.Get(firstID)
	require.NoError(t, err)
	assert.Equal(t, 0.9, stored.Confidence)
}

func TestStore_DuplicateNeverLowersConfidence(t *testing.T) {
	store := NewStore()

	first := smbFinding()
	first.Confidence = 0.9
	id, err := store.Add(first)
	require.NoError(t, err)

	dup := smbFinding()
	dup.Confidence = 0.3
	_, err = store.Add(dup)
	require.NoError(t, err)

	stored, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 0.9, stored.Confidence)
}

func TestStore_DifferentEvidenceIsDistinct(t *testing.T) {
	store := NewStore()

	_, err := store.Add(smbFinding())
	require.NoError(t, err)

	other := smbFinding()
	other.RawEvidence = "anonymous SMB null session permitted"
	_, err = store.Add(other)
	require.NoError(t, err)

	assert.Equal(t, 2, store.Count())
}

func TestStore_QueryFilters(t *testing.T) {
	store := NewStore()

	smb := smbFinding()
	_, err := store.Add(smb)
	require.NoError(t, err)

	web := Finding{
		PhaseOrigin: types.PhaseRecon,
		Target:      types.Target{Host: "10.0.0.7", Port: 443, Service: "https"},
		Category:    CategoryOpenPort,
		RawEvidence: "443/tcp open https",
		SeverityRaw: types.SeverityInfo,
		Confidence:  0.9,
	}
	_, err = store.Add(web)
	require.NoError(t, err)

	byPhase := store.Query(NewFilter().WithPhase(types.PhaseVulnScan))
	require.Len(t, byPhase, 1)
	assert.Equal(t, CategoryCVE, byPhase[0].Category)

	byTarget := store.Query(NewFilter().WithTarget(web.Target))
	require.Len(t, byTarget, 1)
	assert.Equal(t, "10.0.0.7", byTarget[0].Target.Host)

	byCategory := store.Query(NewFilter().WithCategory(CategoryOpenPort))
	require.Len(t, byCategory, 1)

	assert.Len(t, store.Query(nil), 2)
}

func TestStore_QueryPreservesInsertionOrder(t *testing.T) {
	store := NewStore()

	for i := 0; i < 5; i++ {
		f := smbFinding()
		f.RawEvidence = fmt.Sprintf("evidence %d", i)
		_, err := store.Add(f)
		require.NoError(t, err)
	}

	all := store.All()
	require.Len(t, all, 5)
	for i, f := range all {
		assert.Equal(t, fmt.Sprintf("evidence %d", i), f.RawEvidence)
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	store := NewStore()

	id, err := store.Add(smbFinding())
	require.NoError(t, err)

	snapshot := store.All()
	require.Len(t, snapshot, 1)

	// Mutating the snapshot must not leak into the store.
	snapshot[0].Status = StatusFalsePositive
	snapshot[0].Annotations = append(snapshot[0].Annotations, Annotation{Source: SourceRule, Score: 1})

	stored, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, stored.Status)
	assert.Empty(t, stored.Annotations)
}

func TestStore_AnnotateAppendOnly(t *testing.T) {
	store := NewStore()

	id, err := store.Add(smbFinding())
	require.NoError(t, err)

	require.NoError(t, store.Annotate(id, Annotation{Source: SourceRule, Score: 70, Rationale: "first pass"}))
	require.NoError(t, store.Annotate(id, Annotation{Source: SourceOracle, Score: 85, Rationale: "oracle"}))
	require.NoError(t, store.Annotate(id, Annotation{Source: SourceRule, Score: 78, Rationale: "re-scored"}))

	stored, err := store.Get(id)
	require.NoError(t, err)
	require.Len(t, stored.Annotations, 3)

	// History retained in insertion order; latest per source wins for
	// computation.
	latestRule := stored.LatestAnnotation(SourceRule)
	require.NotNil(t, latestRule)
	assert.Equal(t, float64(78), latestRule.Score)

	latestOracle := stored.LatestAnnotation(SourceOracle)
	require.NotNil(t, latestOracle)
	assert.Equal(t, float64(85), latestOracle.Score)
}

func TestStore_AnnotateValidation(t *testing.T) {
	store := NewStore()

	id, err := store.Add(smbFinding())
	require.NoError(t, err)

	err = store.Annotate(id, Annotation{Source: "vibes", Score: 50})
	assert.Equal(t, types.FINDING_INVALID, types.CodeOf(err))

	err = store.Annotate(id, Annotation{Source: SourceRule, Score: 150})
	assert.Equal(t, types.FINDING_INVALID, types.CodeOf(err))

	err = store.Annotate("00000000-0000-0000-0000-000000000000", Annotation{Source: SourceRule, Score: 50})
	assert.Equal(t, types.FINDING_NOT_FOUND, types.CodeOf(err))
}

func TestStore_SetStatus(t *testing.T) {
	store := NewStore()

	id, err := store.Add(smbFinding())
	require.NoError(t, err)

	require.NoError(t, store.SetStatus(id, StatusExploited))

	stored, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusExploited, stored.Status)

	err = store.SetStatus(id, "weird")
	assert.Equal(t, types.FINDING_INVALID_STATUS, types.CodeOf(err))
}

func TestStore_Targets(t *testing.T) {
	store := NewStore()

	_, err := store.Add(smbFinding())
	require.NoError(t, err)

	// Same target key, different service label: still one target.
	alias := smbFinding()
	alias.Target.Service = "microsoft-ds"
	alias.RawEvidence = "different evidence"
	_, err = store.Add(alias)
	require.NoError(t, err)

	other := smbFinding()
	other.Target = types.Target{Host: "10.0.0.7", Port: 80}
	other.RawEvidence = "http banner"
	_, err = store.Add(other)
	require.NoError(t, err)

	targets := store.Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, "10.0.0.5", targets[0].Host)
	assert.Equal(t, "10.0.0.7", targets[1].Host)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				f := smbFinding()
				f.RawEvidence = fmt.Sprintf("worker %d evidence %d", worker, j)
				_, err := store.Add(f)
				assert.NoError(t, err)
				store.Query(NewFilter().WithPhase(types.PhaseVulnScan))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 200, store.Count())
}
