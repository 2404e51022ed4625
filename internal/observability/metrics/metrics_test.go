package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCounters(t *testing.T) {
	Init(nil, nil)

	before := testutil.ToFloat64(ingestRequests.WithLabelValues("http", ResultSuccess))
	ObserveIngest("http", "", 10*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(ingestRequests.WithLabelValues("http", ResultSuccess)))

	createdBefore := testutil.ToFloat64(bulkItemsTotal.WithLabelValues("reading", "created"))
	failedBefore := testutil.ToFloat64(bulkItemsTotal.WithLabelValues("reading", "failed"))
	AddBulkItems("reading", 3, 1)
	assert.Equal(t, createdBefore+3, testutil.ToFloat64(bulkItemsTotal.WithLabelValues("reading", "created")))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(bulkItemsTotal.WithLabelValues("reading", "failed")))

	ackBefore := testutil.ToFloat64(alertEventsTotal.WithLabelValues("acknowledged"))
	IncAlertEvent("acknowledged")
	assert.Equal(t, ackBefore+1, testutil.ToFloat64(alertEventsTotal.WithLabelValues("acknowledged")))
}

func TestQueryCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM alerts`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	assert.Equal(t, 4.0, queryCount(db, zap.NewNop(), "SELECT COUNT(*) FROM alerts WHERE status = 'ACTIVE'"))

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM devices`).
		WillReturnError(errors.New("connection refused"))
	assert.Equal(t, 0.0, queryCount(db, zap.NewNop(), "SELECT COUNT(*) FROM devices"))

	require.NoError(t, mock.ExpectationsWereMet())
}
