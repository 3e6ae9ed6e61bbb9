package client

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/testboard/pkg/wire"
)

func record(code byte, num uint16, tail ...byte) []byte {
	payload := binary.BigEndian.AppendUint16(nil, num)
	payload = append(payload, tail...)
	out := []byte{code}
	out = binary.BigEndian.AppendUint16(out, uint16(len(payload)))
	return append(out, payload...)
}

func passRecord(num uint16, ms uint32) []byte {
	return record(RecTestPass, num, binary.BigEndian.AppendUint32(nil, ms)...)
}

func suiteEnd(total, passed, failed uint16) []byte {
	p := binary.BigEndian.AppendUint16(nil, passed)
	p = binary.BigEndian.AppendUint16(p, failed)
	return record(RecSuiteEnd, total, p...)
}

func join(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func TestParseResults(t *testing.T) {
	suite := record(RecSuiteStart, 3, []byte("kernel")...)
	tests := join(
		record(RecTestStart, 1, []byte("alloc")...), passRecord(1, 12),
		record(RecTestStart, 2, []byte("sched")...), record(RecTestFail, 2, []byte("deadline missed")...),
		record(RecTestStart, 3, []byte("usb")...), record(RecTestSkip, 3, []byte("no device")...),
	)
	for _, tc := range []struct {
		name    string
		log     []byte
		expect  Results
		records int
	}{
		{
			name: "empty",
		},
		{
			name: "plain text",
			log:  []byte("kernel booting\nall tests passed\n"),
		},
		{
			name:    "suite",
			log:     join(suite, tests, suiteEnd(3, 1, 1)),
			expect:  Results{Suite: "kernel", Total: 3, Passed: 1, Failed: 1, Skipped: 1},
			records: 8,
		},
		{
			name:    "interleaved console text",
			log:     join([]byte("boot\n"), suite, []byte("["), tests, wire.Sentinel[:]),
			expect:  Results{Suite: "kernel", Total: 3, Passed: 1, Failed: 1, Skipped: 1},
			records: 7,
		},
		{
			name:    "runner totals override counts",
			log:     join(suite, passRecord(1, 1), suiteEnd(5, 4, 1)),
			expect:  Results{Suite: "kernel", Total: 5, Passed: 4, Failed: 1},
			records: 3,
		},
		{
			name:    "truncated last record",
			log:     join(suite, passRecord(1, 1), record(RecTestFail, 2, []byte("boom")...)[:6]),
			expect:  Results{Suite: "kernel", Total: 3, Passed: 1},
			records: 2,
		},
		{
			name:    "truncated header",
			log:     join(suite, []byte{RecTestFail, 0}),
			expect:  Results{Suite: "kernel", Total: 3},
			records: 1,
		},
		{
			name:    "short payloads",
			log:     join([]byte{RecTestPass, 0, 1, 7}, []byte{RecSuiteEnd, 0, 2, 0, 9}),
			expect:  Results{Passed: 1},
			records: 2,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := ParseResults(tc.log)
			require.Equal(t, tc.records, r.Records)
			require.Equal(t, tc.expect.Suite, r.Suite)
			require.Equal(t, tc.expect.Total, r.Total)
			require.Equal(t, tc.expect.Passed, r.Passed)
			require.Equal(t, tc.expect.Failed, r.Failed)
			require.Equal(t, tc.expect.Skipped, r.Skipped)
		})
	}
}

func TestParseResultsTests(t *testing.T) {
	r := ParseResults(join(
		record(RecTestStart, 1, []byte("alloc")...), passRecord(1, 12),
		record(RecTestStart, 2, []byte("sched")...), record(RecTestFail, 2, 'b', 0xff, 'd'),
		record(RecTestSkip, 3, []byte("no device")...),
	))
	require.Equal(t, []TestResult{
		{Num: 1, Name: "alloc", Outcome: TestPassed, Duration: 12 * time.Millisecond},
		{Num: 2, Name: "sched", Outcome: TestFailed, Detail: "b\uFFFDd"},
		{Num: 3, Outcome: TestSkipped, Detail: "no device"},
	}, r.Tests)

	var out bytes.Buffer
	r.WriteSummary(&out)
	require.Contains(t, out.String(), "Failed:  1\n")
	require.Contains(t, out.String(), "test 2 sched: b\uFFFDd")
}

func TestCIFailedTests(t *testing.T) {
	b := newBench()
	path, _ := writeImage(t, 600)
	output := join(
		record(RecSuiteStart, 2, []byte("kernel")...),
		record(RecTestStart, 1, []byte("alloc")...), passRecord(1, 3),
		record(RecTestStart, 2, []byte("sched")...), record(RecTestFail, 2, []byte("deadline missed")...),
		suiteEnd(2, 1, 1),
		wire.Sentinel[:],
	)
	var progress bytes.Buffer
	ci := &CI{Image: path, Timeout: 5 * time.Second, Interval: 5 * time.Millisecond, Out: &progress}
	result, err := ci.Run(context.Background(), &dut{Board: NewDirect(b.bridge), machine: b.machine, output: output})
	require.NoError(t, err)
	require.Equal(t, wire.StateCompleted, result.Final.State)
	require.True(t, result.MarkerFound)
	require.False(t, result.Success)
	require.Equal(t, 1, result.Results.Failed)
	require.Contains(t, progress.String(), "test 2 sched: deadline missed")
}
