package evidence

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/marketlens/backend/internal/contracts"
)

func TestClassify(t *testing.T) {
	r := DefaultRules()

	tests := []struct {
		source string
		want   SourceClass
	}{
		{"Reuters", ClassMainstream},
		{"https://www.reuters.com/markets/asia/x", ClassMainstream},
		{"Economic Times", ClassMainstream},
		{"economictimes.indiatimes.com", ClassMainstream},
		{"SEC", ClassFiling},
		{"SEC filing 10-K", ClassFiling},
		{"https://www.sec.gov/Archives/edgar/data/1", ClassFiling},
		{"NSE exchange filing", ClassFiling},
		{"SEBI", ClassRegulator},
		{"rbi.org.in", ClassRegulator},
		{"Twitter", ClassSocial},
		{"https://x.com/someone/status/1", ClassSocial},
		{"r/IndianStreetBets reddit", ClassSocial},
		{"YouTube", ClassSocial},
		{"", ClassUnknown},
		{"some blog", ClassUnknown},
		{"second opinion", ClassUnknown},
		{"https://sec.gov.evil.com/x", ClassUnknown},
		{"sec.gov.evil.com", ClassUnknown},
		{"sebi-rumors.blogspot.com", ClassUnknown},
		{"https://reuters.example.org", ClassUnknown},
		{"Random News Blog", ClassUnknown},
		{"Reuters parody on Twitter", ClassSocial},
		{"SEC leak via reddit", ClassSocial},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Classify(tt.source))
		})
	}
}

func TestNormalizeForcesUnverifiedOutsideAllowList(t *testing.T) {
	r := DefaultRules()

	tweet := contracts.EvidenceItem{
		DocID:       "t1",
		Source:      "Twitter",
		SourceTrust: 0.95,
		Verified:    true,
	}
	got := r.Normalize(tweet)
	assert.False(t, got.Verified, "social source must never be verified")
	assert.Equal(t, 0.95, got.SourceTrust, "trust is left untouched")
	assert.True(t, tweet.Verified, "input must not be modified")

	filing := contracts.EvidenceItem{DocID: "f1", Source: "SEC", SourceTrust: 0.9, Verified: true}
	assert.True(t, r.Normalize(filing).Verified)

	unflagged := contracts.EvidenceItem{DocID: "f2", Source: "SEC", Verified: false}
	assert.False(t, r.Normalize(unflagged).Verified, "normalization never promotes")
}

func TestNormalizeRejectsLookalikeSources(t *testing.T) {
	r := DefaultRules()

	for _, src := range []string{
		"https://sec.gov.evil.com/x",
		"Random News Blog",
		"sebi-rumors.blogspot.com",
		"Reuters parody on Twitter",
	} {
		t.Run(src, func(t *testing.T) {
			got := r.Normalize(contracts.EvidenceItem{Source: src, SourceTrust: 0.3, Verified: true})
			assert.False(t, got.Verified)
		})
	}
}

func TestNormalizeAllReturnsFreshSlice(t *testing.T) {
	r := DefaultRules()
	in := []contracts.EvidenceItem{
		{DocID: "a", Source: "Reddit", Verified: true},
		{DocID: "b", Source: "Bloomberg", Verified: true},
	}

	out := r.NormalizeAll(in)
	require.Len(t, out, 2)
	assert.False(t, out[0].Verified)
	assert.True(t, out[1].Verified)
	assert.True(t, in[0].Verified)
}

func TestNewRules(t *testing.T) {
	r, err := NewRules(map[string]SourceClass{"Company IR": ClassFiling}, []SourceClass{ClassFiling})
	require.NoError(t, err)
	assert.Equal(t, ClassFiling, r.Classify("company ir"))
	assert.True(t, r.Allowed(ClassFiling))
	assert.False(t, r.Allowed(ClassMainstream))

	_, err = NewRules(nil, []SourceClass{ClassSocial})
	assert.ErrorIs(t, err, contracts.ErrOutOfRange)

	_, err = NewRules(nil, nil)
	assert.ErrorIs(t, err, contracts.ErrOutOfRange)

	_, err = NewRules(map[string]SourceClass{"x": "bogus"}, []SourceClass{ClassFiling})
	assert.ErrorIs(t, err, contracts.ErrOutOfRange)
}

func TestParseClass(t *testing.T) {
	c, err := ParseClass(" Mainstream ")
	require.NoError(t, err)
	assert.Equal(t, ClassMainstream, c)

	_, err = ParseClass("blog")
	assert.ErrorIs(t, err, contracts.ErrOutOfRange)
}

func TestValidate(t *testing.T) {
	ok := contracts.EvidenceItem{DocID: "a", SourceTrust: 0.5, PublishedAt: time.Now()}
	assert.NoError(t, Validate(ok))

	for _, bad := range []float64{-0.1, 1.01, math.NaN()} {
		err := Validate(contracts.EvidenceItem{DocID: "b", SourceTrust: bad})
		assert.ErrorIs(t, err, contracts.ErrOutOfRange)
	}
}

func TestTrustTier(t *testing.T) {
	tests := []struct {
		trust float64
		want  Tier
	}{
		{1.0, TierHigh},
		{0.8, TierHigh},
		{0.79, TierMedium},
		{0.6, TierMedium},
		{0.59, TierLow},
		{0, TierLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TrustTier(tt.trust), "trust=%v", tt.trust)
	}
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, contracts.TrustAnnotation{}, Summarize(nil))

	mixed := []contracts.EvidenceItem{{Verified: true}, {Verified: false}}
	assert.Equal(t, contracts.TrustAnnotation{Verified: true, Unverified: true}, Summarize(mixed))

	onlyVerified := []contracts.EvidenceItem{{Verified: true}}
	assert.Equal(t, contracts.TrustAnnotation{Verified: true}, Summarize(onlyVerified))
}

func TestCountTiers(t *testing.T) {
	items := []contracts.EvidenceItem{
		{SourceTrust: 0.9},
		{SourceTrust: 0.85},
		{SourceTrust: 0.7},
		{SourceTrust: 0.2},
	}
	assert.Equal(t, TierCounts{High: 2, Medium: 1, Low: 1}, CountTiers(items))
}
