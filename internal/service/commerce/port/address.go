package port

import "context"

// AddressBook 是地址协作方的出站端口。
type AddressBook interface {
	// IsOwnedBy 校验地址是否属于该客户。
	IsOwnedBy(ctx context.Context, addressID, customerID string) (bool, error)
}
