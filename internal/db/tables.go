package db

import "os"

func ShopsTableName() string {
	return os.Getenv("SHOPS_TABLE")
}

func VouchersTableName() string {
	return os.Getenv("VOUCHERS_TABLE")
}

func RedemptionsTableName() string {
	return os.Getenv("REDEMPTIONS_TABLE")
}

func OrdersTableName() string {
	return os.Getenv("ORDERS_TABLE")
}

func SettlementsTableName() string {
	return os.Getenv("SETTLEMENTS_TABLE")
}
