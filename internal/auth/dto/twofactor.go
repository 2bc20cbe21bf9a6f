package dto

type EnrollTwoFactorOutput struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

type ConfirmTwoFactorInput struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

type ConfirmTwoFactorOutput struct {
	BackupCodes []string `json:"backup_codes"`
}

type VerifyTwoFactorInput struct {
	Code       string `json:"code,omitempty"`
	BackupCode string `json:"backup_code,omitempty"`
}

type DisableTwoFactorInput struct {
	Password string `json:"password" validate:"required"`
	Code     string `json:"code" validate:"required"`
}
