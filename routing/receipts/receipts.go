// Package receipts generates PDF deposit-confirmation receipts for
// completed executions, adapted from receipts/generator.go's transaction
// receipt layout: same header/status/summary/signature-box structure, with
// the payment-card fields replaced by the routing pipeline's deposit and
// route fields.
package receipts

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/plm/liquidity-mesh-router/routing/model"
)

func signatureSecretKey() []byte {
	key := os.Getenv("RECEIPT_SIGNATURE_KEY")
	if key == "" {
		log.Println("⚠️  RECEIPT_SIGNATURE_KEY not set - using insecure default (DEV ONLY)")
		return []byte("lmr-dev-receipt-key-NOT-FOR-PRODUCTION")
	}
	return []byte(key)
}

// Generator renders completed executions as PDF receipts.
type Generator struct {
	companyName string
}

// NewGenerator builds a receipt generator under the given display name.
func NewGenerator(companyName string) *Generator {
	return &Generator{companyName: companyName}
}

// GeneratePDF renders a deposit-confirmation receipt for a completed
// execution.
func (g *Generator) GeneratePDF(rec *model.ExecutionRecord, deposit *model.DepositRecord) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 24)
	pdf.SetTextColor(16, 185, 129)
	pdf.CellFormat(190, 15, g.companyName, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(190, 8, "Settlement Receipt", "", 1, "C", false, 0, "")

	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 14)
	switch rec.Status {
	case model.StatusCompleted:
		pdf.SetTextColor(16, 185, 129)
		pdf.CellFormat(190, 10, "SETTLEMENT COMPLETE", "", 1, "C", false, 0, "")
	case model.StatusFailed:
		pdf.SetTextColor(239, 68, 68)
		pdf.CellFormat(190, 10, "SETTLEMENT FAILED", "", 1, "C", false, 0, "")
	default:
		pdf.SetTextColor(234, 179, 8)
		pdf.CellFormat(190, 10, "SETTLEMENT IN PROGRESS", "", 1, "C", false, 0, "")
	}

	pdf.Ln(10)

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFillColor(248, 250, 252)
	startY := pdf.GetY()
	pdf.Rect(10, startY, 190, 37, "F")

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(15, startY+5)
	pdf.Cell(45, 8, "Execution ID:")
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 8, rec.ExecutionID)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(15, startY+13)
	pdf.Cell(45, 8, "Deposit Method:")
	pdf.SetFont("Helvetica", "", 11)
	method := ""
	if deposit != nil {
		method = string(deposit.Instructions.Method)
	}
	pdf.Cell(0, 8, method)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(15, startY+21)
	pdf.Cell(45, 8, "Route:")
	pdf.SetFont("Helvetica", "", 11)
	routeStr := ""
	if rec.Route != nil {
		routeStr = rec.Route.FromToken
		for _, step := range rec.Route.Steps {
			routeStr += " -> " + step.ToToken
		}
	}
	pdf.Cell(0, 8, routeStr)

	pdf.SetXY(15, startY+29)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(45, 8, "Hops:")
	pdf.SetFont("Helvetica", "", 11)
	hops := 0
	if rec.Route != nil {
		hops = len(rec.Route.Steps)
	}
	pdf.Cell(0, 8, fmt.Sprintf("%d", hops))

	pdf.Ln(45)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(190, 10, "Settlement Summary", "", 1, "L", false, 0, "")

	pdf.SetFillColor(229, 231, 235)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(120, 8, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(70, 8, "Amount", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	if rec.Route != nil {
		pdf.CellFormat(120, 8, "Source Amount", "1", 0, "L", false, 0, "")
		pdf.CellFormat(70, 8, fmt.Sprintf("%.2f %s", rec.Route.TotalIn, rec.Route.FromToken), "1", 1, "R", false, 0, "")

		pdf.CellFormat(120, 8, fmt.Sprintf("Routing Fees (%.1f bps)", rec.Route.TotalFeesBps), "1", 0, "L", false, 0, "")
		pdf.SetTextColor(239, 68, 68)
		pdf.CellFormat(70, 8, fmt.Sprintf("-%.1f bps", rec.Route.TotalFeesBps), "1", 1, "R", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(16, 185, 129)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(120, 10, "Amount Settled", "1", 0, "L", true, 0, "")
	finalOut := 0.0
	toToken := ""
	if rec.Route != nil {
		finalOut = rec.Route.TotalOut
		toToken = rec.Route.ToToken
	}
	pdf.CellFormat(70, 10, fmt.Sprintf("%.2f %s", finalOut, toToken), "1", 1, "R", true, 0, "")

	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(10)

	if len(rec.TransactionHashes) > 0 {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(190, 10, "Transaction Hashes", "", 1, "L", false, 0, "")
		pdf.SetFont("Courier", "", 9)
		for i, hash := range rec.TransactionHashes {
			pdf.CellFormat(190, 6, fmt.Sprintf("%d. %s", i+1, hash), "", 1, "L", false, 0, "")
		}
	}

	pdf.Ln(10)

	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetTextColor(128, 128, 128)
	pdf.CellFormat(190, 6, "This is an automated receipt from the liquidity mesh router.", "", 1, "C", false, 0, "")
	pdf.CellFormat(190, 6, fmt.Sprintf("Generated on %s", time.Now().Format("January 2, 2006 at 3:04 PM")), "", 1, "C", false, 0, "")

	pdf.Ln(8)

	signature := generateSignature(rec)
	pdf.SetFillColor(30, 41, 59)
	sigY := pdf.GetY()
	pdf.Rect(10, sigY, 190, 24, "F")

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetTextColor(16, 185, 129)
	pdf.SetXY(15, sigY+5)
	pdf.Cell(180, 6, "DIGITAL SIGNATURE")

	pdf.SetFont("Courier", "", 7)
	pdf.SetTextColor(200, 200, 200)
	pdf.SetXY(15, sigY+13)
	pdf.Cell(180, 5, fmt.Sprintf("Signature: %s", signature))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func generateSignature(rec *model.ExecutionRecord) string {
	data := fmt.Sprintf("%s|%s|%s", rec.ExecutionID, rec.QuoteID, rec.Status)
	h := hmac.New(sha256.New, signatureSecretKey())
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}
