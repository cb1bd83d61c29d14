package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/grant-discovery/internal/grant"
)

func TestSlugAndGrantID(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://www.eurekanetwork.org/programmes-and-calls/eurostars/call-2025":   "call-2025",
		"https://www.eurekanetwork.org/programmes-and-calls/Globalstars_Chile/":    "globalstarschile",
		"https://www.eurekanetwork.org/programmes-and-calls/x/Call%20Two?utm=1#top": "calltwo",
	}
	for in, want := range cases {
		require.Equal(t, want, Slug(in), in)
	}
	require.Equal(t, "eureka_network_call-2025",
		GrantID("eureka_network", "https://www.eurekanetwork.org/programmes-and-calls/eurostars/call-2025"))
}

func TestProgramme(t *testing.T) {
	t.Parallel()

	got := Programme("https://www.eurekanetwork.org/programmes-and-calls/network-projects/brazil-sweden-2025", nil)
	require.Equal(t, grant.Programme{Name: "Network Projects", Funder: "Eureka Network", Code: "brazil-sweden-2025"}, got)

	got = Programme("https://www.eurekanetwork.org/programmes-and-calls/smart-call", []string{"Home", "Programmes and Calls", "Eureka Smart"})
	require.Equal(t, "Eureka Smart", got.Name)

	got = Programme("https://www.eurekanetwork.org/programmes-and-calls/other", []string{"Home"})
	require.Empty(t, got.Name)
	require.Equal(t, Funder, got.Funder)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, -1, 0)
	future := now.AddDate(0, 1, 0)

	cases := []struct {
		name      string
		label     string
		open      *time.Time
		closing   *time.Time
		fallback  grant.Status
		want      grant.Status
		wantBasis Basis
	}{
		{"closed label beats future close", "closed", nil, &future, grant.StatusOpen, grant.StatusClosed, BasisLabel},
		{"closed label beats future open", "Closed", &future, nil, grant.StatusOpen, grant.StatusClosed, BasisLabel},
		{"upcoming label", "upcoming", nil, nil, grant.StatusOpen, grant.StatusForthcoming, BasisLabel},
		{"past close date", "", nil, &past, grant.StatusOpen, grant.StatusClosed, BasisCloseDate},
		{"future open date", "", &future, nil, grant.StatusOpen, grant.StatusForthcoming, BasisOpenDate},
		{"close date wins over open date", "", &future, &past, grant.StatusOpen, grant.StatusClosed, BasisCloseDate},
		{"open window", "", &past, &future, grant.StatusOpen, grant.StatusOpen, BasisDefault},
		{"no signal unknown default", "", nil, nil, grant.StatusUnknown, grant.StatusUnknown, BasisDefault},
		{"unrecognised label", "archived", nil, nil, grant.StatusOpen, grant.StatusOpen, BasisDefault},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, basis := Status(tc.label, tc.open, tc.closing, now, tc.fallback)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.wantBasis, basis)
		})
	}
}

func TestParseDefault(t *testing.T) {
	t.Parallel()

	s, err := ParseDefault("unknown")
	require.NoError(t, err)
	require.Equal(t, grant.StatusUnknown, s)

	s, err = ParseDefault("OPEN")
	require.NoError(t, err)
	require.Equal(t, grant.StatusOpen, s)

	_, err = ParseDefault("closed")
	require.Error(t, err)
}
