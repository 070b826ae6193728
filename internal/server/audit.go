package server

import (
	"context"

	"github.com/weiawesome/fin-dashboard/pkg/log"
)

// Audit actions.
const (
	ActionRegister          = "user.register"
	ActionLogin             = "user.login"
	ActionLoginFailed       = "user.login_failed"
	ActionTransactionCreate = "transaction.create"
	ActionTransactionUpdate = "transaction.update"
	ActionTransactionDelete = "transaction.delete"
	ActionImport            = "transaction.import"
	ActionExport            = "transaction.export"
	ActionChatConnect       = "chat.connect"
)

const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// audit emits a structured audit entry via the context logger.
func audit(ctx context.Context, action, userID, targetID, msg string) {
	l := log.Ctx(ctx)
	evt := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID)
	if targetID != "" {
		evt = evt.Str(FieldTargetID, targetID)
	}
	evt.Msg(msg)
}
