package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-verification-nosql/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func code(key, email string) domain.VerificationCode {
	return domain.VerificationCode{Partition: domain.VerificationCodePartition, Key: key, Email: email, Code: "123456"}
}

func collect(t *testing.T, tbl *Table[domain.VerificationCode], conds ...domain.Condition) []domain.VerificationCode {
	t.Helper()
	var out []domain.VerificationCode
	for rec, err := range tbl.Scan(context.Background(), domain.VerificationCodePartition, conds...) {
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func TestGet_Absent(t *testing.T) {
	tbl := NewTable[domain.VerificationCode]()
	got, err := tbl.Get(context.Background(), domain.VerificationCodePartition, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpsert_LastWriterWins(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable[domain.VerificationCode]()
	first := code("k1", "a@example.com")
	second := first
	second.Code = "654321"

	require.NoError(t, tbl.Upsert(ctx, first))
	require.NoError(t, tbl.Upsert(ctx, second))

	got, err := tbl.Get(ctx, domain.VerificationCodePartition, "k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "654321", got.Code)
}

func TestUpsert_RejectsMissingKey(t *testing.T) {
	tbl := NewTable[domain.VerificationCode]()
	err := tbl.Upsert(context.Background(), domain.VerificationCode{Partition: domain.VerificationCodePartition})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestScan_FiltersByAttributeAndPartition(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable[domain.VerificationCode]()
	require.NoError(t, tbl.Upsert(ctx, code("k1", "a@example.com")))
	require.NoError(t, tbl.Upsert(ctx, code("k2", "b@example.com")))
	require.NoError(t, tbl.Upsert(ctx, code("k3", "a@example.com")))
	other := code("k4", "a@example.com")
	other.Partition = "Elsewhere"
	require.NoError(t, tbl.Upsert(ctx, other))

	got := collect(t, tbl, domain.Eq(domain.AttrEmail, "a@example.com"))
	keys := []string{}
	for _, r := range got {
		keys = append(keys, r.Key)
	}
	assert.ElementsMatch(t, []string{"k1", "k3"}, keys)
	assert.Len(t, collect(t, tbl), 3)
}

func TestScan_EmptyAttributeMatchesEmptyValue(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable[domain.VerificationCode]()
	require.NoError(t, tbl.Upsert(ctx, code("k1", "a@example.com")))
	withClient := code("k2", "a@example.com")
	withClient.ClientID = "web"
	require.NoError(t, tbl.Upsert(ctx, withClient))

	got := collect(t, tbl, domain.Eq("client_id", ""))
	require.Len(t, got, 1)
	assert.Equal(t, "k1", got[0].Key)
}

func TestScan_StopsWhenConsumerBreaks(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable[domain.VerificationCode]()
	for _, k := range []string{"k1", "k2", "k3"} {
		require.NoError(t, tbl.Upsert(ctx, code(k, "a@example.com")))
	}
	n := 0
	for _, err := range tbl.Scan(ctx, domain.VerificationCodePartition) {
		require.NoError(t, err)
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestScan_CanceledContext(t *testing.T) {
	tbl := NewTable[domain.VerificationCode]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, err := range tbl.Scan(ctx, domain.VerificationCodePartition) {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestMerge_NotFound(t *testing.T) {
	tbl := NewTable[domain.VerificationCode]()
	_, err := tbl.Merge(context.Background(), domain.VerificationCodePartition, "missing",
		func(r domain.VerificationCode) (domain.VerificationCode, error) { return r, nil })
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMerge_TransformErrorLeavesRecord(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable[domain.VerificationCode]()
	require.NoError(t, tbl.Upsert(ctx, code("k1", "a@example.com")))
	boom := errors.New("boom")

	_, err := tbl.Merge(ctx, domain.VerificationCodePartition, "k1", func(r domain.VerificationCode) (domain.VerificationCode, error) {
		r.Code = "000000"
		return r, boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := tbl.Get(ctx, domain.VerificationCodePartition, "k1")
	require.NoError(t, err)
	assert.Equal(t, "123456", got.Code)
}

func TestMerge_RejectsKeyChange(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable[domain.VerificationCode]()
	require.NoError(t, tbl.Upsert(ctx, code("k1", "a@example.com")))

	_, err := tbl.Merge(ctx, domain.VerificationCodePartition, "k1", func(r domain.VerificationCode) (domain.VerificationCode, error) {
		r.Key = "k2"
		return r, nil
	})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestMerge_ConcurrentIncrementsAreNotLost(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable[domain.VerificationCode]()
	require.NoError(t, tbl.Upsert(ctx, code("k1", "a@example.com")))

	const n = 50
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tbl.Merge(ctx, domain.VerificationCodePartition, "k1", func(r domain.VerificationCode) (domain.VerificationCode, error) {
				r.ResendCount++
				return r, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := tbl.Get(ctx, domain.VerificationCodePartition, "k1")
	require.NoError(t, err)
	assert.Equal(t, n, got.ResendCount)
}

func TestDeleteIfExists_Idempotent(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable[domain.VerificationCode]()
	require.NoError(t, tbl.Upsert(ctx, code("k1", "a@example.com")))

	require.NoError(t, tbl.DeleteIfExists(ctx, domain.VerificationCodePartition, "k1"))
	require.NoError(t, tbl.DeleteIfExists(ctx, domain.VerificationCodePartition, "k1"))

	got, err := tbl.Get(ctx, domain.VerificationCodePartition, "k1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
