package client

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"
)

// Result records the DUT test runner writes on its console, each as
// [code][length u16 BE][payload].
const (
	RecSuiteStart byte = 100 // [expected u16][suite name]
	RecTestStart  byte = 101 // [test u16][test name]
	RecTestPass   byte = 102 // [test u16][duration ms u32]
	RecTestFail   byte = 103 // [test u16][error]
	RecTestSkip   byte = 104 // [test u16][reason]
	RecSuiteEnd   byte = 105 // [total u16][passed u16][failed u16]

	recHeaderSize = 3
)

// Test outcomes.
const (
	TestPassed  = "pass"
	TestFailed  = "fail"
	TestSkipped = "skip"
)

// TestResult is the outcome of one test.
type TestResult struct {
	Num      uint16
	Name     string
	Outcome  string
	Duration time.Duration
	// Detail is the error of a failed test or the reason for a skip.
	Detail string
}

// Results summarizes the result records found in a console log.
type Results struct {
	Suite   string
	Total   int
	Passed  int
	Failed  int
	Skipped int
	Tests   []TestResult
	// Records counts the decoded records. Zero means the log carried no
	// results at all.
	Records int
}

// ParseResults decodes the result records in log. Bytes outside records,
// such as plain console text, are skipped. A record whose declared length
// runs past the end of log is not decoded.
func ParseResults(log []byte) *Results {
	r := &Results{}
	names := make(map[uint16]string)
	for off := 0; off+recHeaderSize <= len(log); {
		code := log[off]
		if code < RecSuiteStart || code > RecSuiteEnd {
			off++
			continue
		}
		size := int(binary.BigEndian.Uint16(log[off+1:]))
		end := off + recHeaderSize + size
		if end > len(log) {
			off++
			continue
		}
		r.decode(code, log[off+recHeaderSize:end], names)
		r.Records++
		off = end
	}
	return r
}

func (r *Results) decode(code byte, payload []byte, names map[uint16]string) {
	num, text := numbered(payload)
	switch code {
	case RecSuiteStart:
		r.Suite, r.Total = text, int(num)
	case RecTestStart:
		names[num] = text
	case RecTestPass:
		var ms uint32
		if len(payload) >= 6 {
			ms = binary.BigEndian.Uint32(payload[2:])
		}
		r.Passed++
		r.Tests = append(r.Tests, TestResult{
			Num:      num,
			Name:     names[num],
			Outcome:  TestPassed,
			Duration: time.Duration(ms) * time.Millisecond,
		})
	case RecTestFail:
		r.Failed++
		r.Tests = append(r.Tests, TestResult{Num: num, Name: names[num], Outcome: TestFailed, Detail: text})
	case RecTestSkip:
		r.Skipped++
		r.Tests = append(r.Tests, TestResult{Num: num, Name: names[num], Outcome: TestSkipped, Detail: text})
	case RecSuiteEnd:
		// the runner's own totals win over the counted records
		if len(payload) >= 6 {
			r.Total = int(binary.BigEndian.Uint16(payload))
			r.Passed = int(binary.BigEndian.Uint16(payload[2:]))
			r.Failed = int(binary.BigEndian.Uint16(payload[4:]))
		}
	}
}

func numbered(payload []byte) (uint16, string) {
	if len(payload) < 2 {
		return 0, ""
	}
	return binary.BigEndian.Uint16(payload), strings.ToValidUTF8(string(payload[2:]), "\uFFFD")
}

// WriteSummary prints the suite totals and every failed test.
func (r *Results) WriteSummary(w io.Writer) {
	fmt.Fprintf(w, "Suite: %s\n", r.Suite)
	fmt.Fprintf(w, "Total:   %d\n", r.Total)
	fmt.Fprintf(w, "Passed:  %d\n", r.Passed)
	fmt.Fprintf(w, "Failed:  %d\n", r.Failed)
	fmt.Fprintf(w, "Skipped: %d\n", r.Skipped)
	for _, t := range r.Tests {
		if t.Outcome == TestFailed {
			fmt.Fprintf(w, "  test %d %s: %s\n", t.Num, t.Name, t.Detail)
		}
	}
}
