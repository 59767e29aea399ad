package dtcbridge

import (
	"fmt"
	"time"

	"github.com/openecu/j1939sock/common"
)

// PGN constants for the active (DM1) and previously-active (DM2)
// diagnostic trouble code broadcasts, carried over from
// frame_processor.go.
const (
	PGNDM1 uint32 = 0xFECA
	PGNDM2 uint32 = 0xFECB
)

// decodeDTCs parses the 2-byte lamp-status header plus N four-byte
// SPN/FMI/OC records a DM1 or DM2 broadcast carries, exactly the layout
// cmd/agent-j1939/frame_processor.go's parseDM1/parseDM2 establish:
//
//	data[0:2]   lamp status (MIL/RSL/AWL/PL), ignored here
//	data[2]     SPN low byte
//	data[3]     SPN mid byte
//	data[4]     FMI (low 5 bits) | SPN high 3 bits (top 3 bits)
//	data[5]     OC (low 7 bits) | conversion method (top bit), ignored
func decodeDTCs(data []byte, srcAddr uint8) ([]common.DTCCode, error) {
	if len(data) <= 2 {
		return nil, nil
	}
	if (len(data)-2)%4 != 0 {
		return nil, fmt.Errorf("dtcbridge: DM payload length %d is not 2+4N bytes", len(data))
	}

	n := (len(data) - 2) / 4
	out := make([]common.DTCCode, 0, n)
	for i := 0; i < n; i++ {
		offset := 2 + i*4
		spnLow := uint16(data[offset])
		spnMid := uint16(data[offset+1])
		spnHigh := uint8(data[offset+2] >> 5)
		spn := uint32(spnLow) | uint32(spnMid)<<8 | uint32(spnHigh)<<16
		fmi := data[offset+2] & 0x1F
		oc := data[offset+3] & 0x7F

		out = append(out, common.DTCCode{
			MID:       int(srcAddr),
			SPN:       int(spn),
			FMI:       int(fmi),
			OC:        int(oc),
			Timestamp: time.Now().UnixNano(),
		})
	}
	return out, nil
}
