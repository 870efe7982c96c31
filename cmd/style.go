package main

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/veritrace/veritrace/ledger"
)

// renderVerdict prints the verification outcome in a framed panel, colored by
// verdict.
func renderVerdict(result ledger.VerificationResult) {
	style := pterm.FgGreen
	switch result.Verdict {
	case ledger.VerdictFake, ledger.VerdictInvalid:
		style = pterm.FgRed
	case ledger.VerdictSuspicious:
		style = pterm.FgYellow
	}

	body := pterm.Sprintf("%s\nScore: %.1f  Confidence: %.0f%%\nFactors: %s",
		style.Sprint(string(result.Verdict)),
		result.AIScore,
		result.Confidence,
		strings.Join(result.Factors, ", "),
	)
	box := pterm.DefaultBox.WithLeftPadding(4).WithRightPadding(4).WithTopPadding(1).WithBottomPadding(1)
	pterm.Println(box.WithTitle(pterm.LightYellow("|VERDICT|")).WithTitleTopCenter().Sprint(body))
}

// renderChain prints the validated lineage as a table plus a one-line
// integrity summary.
func renderChain(report ledger.ValidationReport) {
	rows := pterm.TableData{{"#", "Remarks", "Block Hash", "Previous"}}
	for _, b := range report.Blocks {
		prev := "-"
		if b.PreviousHash != nil {
			prev = shorten(*b.PreviousHash)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", b.BlockNumber),
			string(b.Remarks),
			shorten(b.BlockHash),
			prev,
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		pterm.Error.Println(err)
	}

	if report.Valid {
		pterm.Success.Printfln("chain intact: %d blocks", report.BlockCount)
	} else {
		pterm.Error.Printfln("chain broken at block %d: %s", report.BrokenIndex, report.Reason)
	}
}

func shorten(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12] + "…"
}
