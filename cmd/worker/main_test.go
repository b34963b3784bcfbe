package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mouldworks/mouldworks/internal/app"
	_ "github.com/mouldworks/mouldworks/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())

	// Returns immediately without dialling Postgres or Redis.
	main()
}
