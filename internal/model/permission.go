package model

// 调用方权限
const (
	PermissionManageLocalAccounts                  = "ohos.permission.MANAGE_LOCAL_ACCOUNTS"
	PermissionInteractAcrossLocalAccounts          = "ohos.permission.INTERACT_ACROSS_LOCAL_ACCOUNTS"
	PermissionInteractAcrossLocalAccountsExtension = "ohos.permission.INTERACT_ACROSS_LOCAL_ACCOUNTS_EXTENSION"
	PermissionManageUserIDM                        = "ohos.permission.MANAGE_USER_IDM"
	PermissionUseUserIDM                           = "ohos.permission.USE_USER_IDM"
	PermissionAccessUserAuthInternal               = "ohos.permission.ACCESS_USER_AUTH_INTERNAL"
	PermissionAccessPINAuth                        = "ohos.permission.ACCESS_PIN_AUTH"
)

// AllPermissions 全部已知权限
var AllPermissions = []string{
	PermissionManageLocalAccounts,
	PermissionInteractAcrossLocalAccounts,
	PermissionInteractAcrossLocalAccountsExtension,
	PermissionManageUserIDM,
	PermissionUseUserIDM,
	PermissionAccessUserAuthInternal,
	PermissionAccessPINAuth,
}
