package pipeline

import "fmt"

// buildPixEMVCode assembles a simplified EMV-BR Code payload for a PIX
// deposit reference: merchant-account-info (the PIX key), transaction
// amount and reference, terminated with a CRC16-CCITT checksum, per §4.6.c.
// This is a narrowly-scoped, self-contained implementation since no
// ecosystem package in the example pack covers EMV QR/CRC16-CCITT.
func buildPixEMVCode(paymentReference string, amount float64, pixKey string) string {
	payload := fmt.Sprintf("00020126%02d0014BR.GOV.BCB.PIX01%02d%s52040000530398654%02d%.2f5802BR5913PLM LIQUIDITY6009SAO PAULO62%02d05%02d%s",
		len(pixKey)+22, len(pixKey), pixKey,
		len(fmt.Sprintf("%.2f", amount)), amount,
		len(paymentReference)+4, len(paymentReference), paymentReference,
	)
	payload += "6304"
	crc := crc16CCITT([]byte(payload))
	return fmt.Sprintf("%s%04X", payload, crc)
}

// crc16CCITT computes the CRC16/CCITT-FALSE checksum (poly 0x1021, init
// 0xFFFF) the EMV QR spec requires.
func crc16CCITT(data []byte) uint16 {
	var crc uint16 = 0xFFFF
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
