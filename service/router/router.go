package router

import (
	"github.com/gorilla/mux"

	"github.com/edusuite/service-fees/service/handlers"
)

func NewRouter(js *handlers.JobServer) *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	// Health check endpoint
	router.HandleFunc("/health", handlers.HealthHandler).Methods("GET")

	// Fee ledger
	router.HandleFunc("/fees", js.CreateFee).Methods("POST")
	router.HandleFunc("/fees/{id}", js.GetFee).Methods("GET")
	router.HandleFunc("/fees/{id}/generate", js.GenerateFee).Methods("POST")
	router.HandleFunc("/fees/{id}/verify", js.VerifyFee).Methods("POST")
	router.HandleFunc("/fees/{id}/lock", js.LockFee).Methods("POST")
	router.HandleFunc("/fees/{id}/cancel", js.CancelFee).Methods("POST")
	router.HandleFunc("/fees/{id}/reinstate", js.ReinstateFee).Methods("POST")
	router.HandleFunc("/students/{student_id}/fees", js.ListStudentFees).Methods("GET")
	router.HandleFunc("/students/{student_id}/credits", js.ListStudentCredits).Methods("GET")

	// Bills
	router.HandleFunc("/bills", js.CreateBill).Methods("POST")
	router.HandleFunc("/bills/{id}", js.GetBill).Methods("GET")
	router.HandleFunc("/bills/{id}/payments", js.RecordBillPayment).Methods("POST")
	router.HandleFunc("/bill-payments/{id}/void", js.VoidBillPayment).Methods("POST")

	// Manual payments
	router.HandleFunc("/fees/{id}/payments", js.RecordFeePayment).Methods("POST")
	router.HandleFunc("/payments/{id}/void", js.VoidFeePayment).Methods("POST")
	router.HandleFunc("/payments/{id}/confirm", js.ConfirmPayment).Methods("POST")

	// Online payments
	router.HandleFunc("/payments/initiate", js.InitiatePayment).Methods("POST")
	router.HandleFunc("/payments/callback", js.PaymentCallback).Methods("GET")
	router.HandleFunc("/payments/webhook", js.PaymentWebhook).Methods("POST")
	router.HandleFunc("/payments/pending/{reference}", js.GetPendingPayment).Methods("GET")

	// Month-end inputs
	router.HandleFunc("/expenses", js.RecordExpense).Methods("POST")
	router.HandleFunc("/bank-statements", js.RecordBankStatement).Methods("POST")

	// Reconciliation and audit
	router.HandleFunc("/reconciliation/daily", js.DailyReconciliation).Methods("GET")
	router.HandleFunc("/reconciliation/monthly", js.MonthlyReconciliation).Methods("GET")
	router.HandleFunc("/audit/{model}/{id}", js.ObjectAuditHistory).Methods("GET")
	router.HandleFunc("/audit/users/{user_id}", js.UserAuditActivity).Methods("GET")

	return router
}
