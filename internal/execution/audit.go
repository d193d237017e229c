package execution

import (
	"fmt"
	"strconv"
	"strings"
)

// auditCommentVersion is the schema version embedded in every comment
// (§4.12). Bump it whenever the field list or ordering changes.
const auditCommentVersion = 1

// maxAuditCommentLen is the hard ceiling on audit comment length (§4.12);
// the format is constructed to never approach it, but BuildAuditComment
// truncates on the right as a last resort rather than ever exceeding it.
const maxAuditCommentLen = 100

// BuildAuditComment renders the compact, fixed-schema audit string attached
// to every order (§4.12):
// O|<ver>|<hmm_state>|<action_idx>|<intensity>|<balance_int>|<dd_pct_1dp>|<vpnl_2dp>
func BuildAuditComment(hmmState, actionIdx, intensity int, balance, ddPct, virtualPnL float64) string {
	s := fmt.Sprintf("O|%d|%d|%d|%d|%d|%.1f|%.2f",
		auditCommentVersion, hmmState, actionIdx, intensity, int(balance), ddPct, virtualPnL)
	if len(s) > maxAuditCommentLen {
		s = s[:maxAuditCommentLen]
	}
	return s
}

// ParsedAuditComment is the reverse-parse of a BuildAuditComment output.
type ParsedAuditComment struct {
	Version    int
	HMMState   int
	ActionIdx  int
	Intensity  int
	Balance    int
	DDPct      float64
	VirtualPnL float64
}

// ParseAuditComment reverses BuildAuditComment, reconstructing the fields
// exactly (§4.12).
func ParseAuditComment(s string) (ParsedAuditComment, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 8 || parts[0] != "O" {
		return ParsedAuditComment{}, fmt.Errorf("audit comment: malformed: %q", s)
	}
	ints := make([]int, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.Atoi(parts[i+1])
		if err != nil {
			return ParsedAuditComment{}, fmt.Errorf("audit comment: field %d: %w", i+1, err)
		}
		ints[i] = v
	}
	dd, err := strconv.ParseFloat(parts[6], 64)
	if err != nil {
		return ParsedAuditComment{}, fmt.Errorf("audit comment: dd field: %w", err)
	}
	vpnl, err := strconv.ParseFloat(parts[7], 64)
	if err != nil {
		return ParsedAuditComment{}, fmt.Errorf("audit comment: vpnl field: %w", err)
	}
	return ParsedAuditComment{
		Version:    ints[0],
		HMMState:   ints[1],
		ActionIdx:  ints[2],
		Intensity:  ints[3],
		Balance:    ints[4],
		DDPct:      dd,
		VirtualPnL: vpnl,
	}, nil
}
