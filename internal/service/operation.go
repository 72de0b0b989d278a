package service

import "osaccount/internal/model"

// Operation 受保护操作，Code为被拒绝时返回的操作错误码
// Permissions满足其一即可，为空表示无需权限
type Operation struct {
	Name        string
	Code        int
	Permissions []string
}

var (
	manageAccounts  = []string{model.PermissionManageLocalAccounts}
	manageOrAcross  = []string{model.PermissionManageLocalAccounts, model.PermissionInteractAcrossLocalAccounts}
	manageOrAcrossX = []string{model.PermissionManageLocalAccounts, model.PermissionInteractAcrossLocalAccountsExtension}
	acrossX         = []string{model.PermissionInteractAcrossLocalAccountsExtension}
	manageIDM       = []string{model.PermissionManageUserIDM}
	useIDM          = []string{model.PermissionUseUserIDM}
	userAuth        = []string{model.PermissionAccessUserAuthInternal}
	pinAuth         = []string{model.PermissionAccessPINAuth}
)

// 账号管理操作
var (
	OpCreateOsAccount             = Operation{"createOsAccount", 4587523, manageAccounts}
	OpCreateOsAccountForDomain    = Operation{"createOsAccountForDomain", 4587524, manageAccounts}
	OpRemoveOsAccount             = Operation{"removeOsAccount", 4587529, manageAccounts}
	OpSetOsAccountName            = Operation{"setOsAccountName", 4587531, manageAccounts}
	OpIsOsAccountActived          = Operation{"isOsAccountActived", 4587542, manageOrAcross}
	OpIsOsAccountConstraintEnable = Operation{"isOsAccountConstraintEnable", 4587543, manageAccounts}
	OpIsOsAccountVerified         = Operation{"isOsAccountVerified", 4587545, manageOrAcross}
	OpGetCreatedOsAccountsCount   = Operation{"getCreatedOsAccountsCount", 4587546, manageAccounts}
	OpGetOsAccountAllConstraints  = Operation{"getOsAccountAllConstraints", 4587550, manageAccounts}
	OpQueryAllCreatedOsAccounts   = Operation{"queryAllCreatedOsAccounts", 4587551, manageAccounts}
	OpQueryCurrentOsAccount       = Operation{"queryCurrentOsAccount", 4587552, manageAccounts}
	OpQueryOsAccountByID          = Operation{"queryOsAccountById", 4587553, manageOrAcrossX}
	OpGetOsAccountProfilePhoto    = Operation{"getOsAccountProfilePhoto", 4587555, manageAccounts}
	OpSetOsAccountConstraints     = Operation{"setOsAccountConstraints", 4587562, manageAccounts}
	OpSetOsAccountProfilePhoto    = Operation{"setOsAccountProfilePhoto", 4587563, manageAccounts}
	OpActivateOsAccount           = Operation{"activateOsAccount", 4587571, acrossX}
	OpOn                          = Operation{"on", 4587574, acrossX}
	OpOff                         = Operation{"off", 4587575, acrossX}
	OpQueryActivatedOsAccountIDs  = Operation{"queryActivatedOsAccountIds", 4587576, nil}
)

// 身份管理操作
var (
	OpOpenSession      = Operation{"openSession", 4587601, manageIDM}
	OpAddCredential    = Operation{"addCredential", 4587602, manageIDM}
	OpUpdateCredential = Operation{"updateCredential", 4587603, manageIDM}
	OpCancel           = Operation{"cancel", 4587604, manageIDM}
	OpDelUser          = Operation{"delUser", 4587605, manageIDM}
	OpDelCred          = Operation{"delCred", 4587606, manageIDM}
	OpCloseSession     = Operation{"closeSession", 4587607, manageIDM}
	OpGetAuthInfo      = Operation{"getAuthInfo", 4587608, useIDM}
)

// 用户认证操作
var (
	OpAuth               = Operation{"auth", 4587611, userAuth}
	OpAuthUser           = Operation{"authUser", 4587612, userAuth}
	OpCancelAuth         = Operation{"cancelAuth", 4587613, userAuth}
	OpGetAvailableStatus = Operation{"getAvailableStatus", 4587614, userAuth}
	OpGetProperty        = Operation{"getProperty", 4587615, userAuth}
	OpSetProperty        = Operation{"setProperty", 4587616, userAuth}
	OpRegisterInputer    = Operation{"registerInputer", 4587621, pinAuth}
	OpUnregisterInputer  = Operation{"unregisterInputer", 4587622, pinAuth}
)
