package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/critdb/crit/internal/record"
)

func TestLastWriteWinsPicksLaterTimestamp(t *testing.T) {
	h := LastWriteWins(2)
	now := time.Now()
	local := record.Record{"k1", now}
	remote := record.Record{"k1", now.Add(time.Second)}

	assert.Equal(t, remote, h(local, remote))
	assert.Equal(t, remote, h(remote, local))
}

func TestLastWriteWinsTiesKeepLocal(t *testing.T) {
	h := LastWriteWins(2)
	now := time.Now()
	local := record.Record{"k1", now}
	remote := record.Record{"k1", now}

	assert.Equal(t, local, h(local, remote))
}

func TestPreferFieldPicksMaxValue(t *testing.T) {
	h := PreferField(2)
	local := record.Record{"k1", 10}
	remote := record.Record{"k1", 20}

	assert.Equal(t, remote, h(local, remote))
	assert.Equal(t, remote, h(remote, local))
}

func TestPreferFieldFallsBackToLocalOnBadPosition(t *testing.T) {
	h := PreferField(5)
	local := record.Record{"k1", 10}
	remote := record.Record{"k1", 20}

	assert.Equal(t, local, h(local, remote))
}
