package payment

import (
	"fmt"
	"time"

	"github.com/vitwit/usdcpay/types"
)

// ProjectReceipt derives the displayable receipt of a payment. It refuses to
// build one unless both transactions are confirmed.
func ProjectReceipt(req types.PaymentRequest, txs types.TxRecord, at time.Time, explorerURL string) (*types.Receipt, error) {
	if !txs.Confirmed() {
		return nil, fmt.Errorf("receipt requires confirmed approval and transfer (approval=%q transfer=%q)",
			txs.ApprovalStatus, txs.TransferStatus)
	}

	return &types.Receipt{
		ItemName:        req.ItemName,
		PurchaseAmount:  req.DisplayAmount(),
		TransactionHash: txs.TransferHash,
		ApprovalHash:    txs.ApprovalHash,
		Date:            at.Format(types.ReceiptDateLayout),
		Timestamp:       at,
		ExplorerURL:     types.TxLink(explorerURL, txs.TransferHash),
	}, nil
}
