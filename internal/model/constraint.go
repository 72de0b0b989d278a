package model

import "time"

// AccountConstraint 账号约束
type AccountConstraint struct {
	LocalID   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"primaryKey;type:varchar(128)"`
	CreatedAt time.Time
}

// TableName 指定表名
func (AccountConstraint) TableName() string {
	return "account_constraints"
}

// 受保护操作检查的约束
const (
	ConstraintAccountCreate  = "constraint.os.account.create"
	ConstraintAccountRemove  = "constraint.os.account.remove"
	ConstraintAccountStart   = "constraint.os.account.start"
	ConstraintAccountSetIcon = "constraint.os.account.set.icon"
	ConstraintCredentialsSet = "constraint.credentials.set"
)

// ConstraintCatalog 已知约束名目录
var ConstraintCatalog = []string{
	"constraint.wifi",
	"constraint.wifi.set",
	"constraint.locale.set",
	"constraint.app.accounts",
	"constraint.apps.install",
	"constraint.apps.uninstall",
	"constraint.location.shared",
	"constraint.unknown.sources.install",
	"constraint.global.unknown.app.install",
	"constraint.bluetooth.set",
	"constraint.bluetooth",
	"constraint.bluetooth.share",
	"constraint.usb.file.transfer",
	"constraint.credentials.set",
	"constraint.os.account.remove",
	"constraint.managed.profile.remove",
	"constraint.debug.features.use",
	"constraint.vpn.set",
	"constraint.date.time.set",
	"constraint.tethering.config",
	"constraint.network.reset",
	"constraint.factory.reset",
	"constraint.os.account.create",
	"constraint.add.managed.profile",
	"constraint.apps.verify.disable",
	"constraint.cell.broadcasts.set",
	"constraint.mobile.networks.set",
	"constraint.control.apps",
	"constraint.physical.media",
	"constraint.microphone",
	"constraint.microphone.unmute",
	"constraint.volume.adjust",
	"constraint.calls.outgoing",
	"constraint.sms.use",
	"constraint.fun",
	"constraint.windows.create",
	"constraint.system.error.dialogs",
	"constraint.cross.profile.copy.paste",
	"constraint.beam.outgoing",
	"constraint.wallpaper",
	"constraint.safe.boot",
	"constraint.parent.profile.app.linking",
	"constraint.audio.record",
	"constraint.camera.use",
	"constraint.os.account.background.run",
	"constraint.data.roam",
	"constraint.os.account.set.icon",
	"constraint.wallpaper.set",
	"constraint.oem.unlock",
	"constraint.device.unmute",
	"constraint.password.unified",
	"constraint.autofill",
	"constraint.content.capture",
	"constraint.content.suggestions",
	"constraint.os.account.start",
	"constraint.location.set",
	"constraint.airplane.mode.set",
	"constraint.brightness.set",
	"constraint.share.into.profile",
	"constraint.ambient.display",
	"constraint.screen.timeout.set",
	"constraint.print",
	"constraint.private.dns.set",
}
