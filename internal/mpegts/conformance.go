package mpegts

import (
	"context"
	"errors"
	"io"

	"github.com/asticode/go-astits"

	"github.com/jmylchreest/livepackager/internal/model"
)

// ConformanceReport summarizes the PAT/PMT structure an independent decode
// of a packager-emitted TS segment observed.
type ConformanceReport struct {
	ProgramNumber  uint16
	ProgramMapPID  uint16
	PCRPID         uint16
	ElementaryPIDs []uint16
}

// CheckConformance decodes segment with go-astits, a library wholly
// independent of mediacommon's own mpegts.Writer, and reports the PAT/PMT
// structure it found. This exists to catch PAT/PMT bugs an assertion
// against mediacommon's own (potentially self-consistently-wrong) decoder
// would miss; it is not used on the production write path.
func CheckConformance(segment io.Reader) (ConformanceReport, model.Status) {
	dmx := astits.NewDemuxer(context.Background(), segment)

	var report ConformanceReport
	var sawPAT, sawPMT bool

	for !sawPAT || !sawPMT {
		data, err := dmx.NextData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return report, model.Wrap(model.CodeParserFailure, "demuxing TS segment with astits", err)
		}

		if data.PAT != nil {
			for _, p := range data.PAT.Programs {
				if p.ProgramNumber == 0 {
					continue // the network-PID entry, not a program
				}
				report.ProgramNumber = p.ProgramNumber
				report.ProgramMapPID = p.ProgramMapID
			}
			sawPAT = true
		}

		if data.PMT != nil {
			report.PCRPID = data.PMT.PCRPID
			for _, es := range data.PMT.ElementaryStreams {
				report.ElementaryPIDs = append(report.ElementaryPIDs, es.ElementaryPID)
			}
			sawPMT = true
		}
	}

	if !sawPAT || !sawPMT {
		return report, model.NewStatus(model.CodeParserFailure, "TS segment did not contain both PAT and PMT")
	}
	return report, model.OK
}
