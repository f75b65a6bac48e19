package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"giftbackend/internal/db"
	"giftbackend/internal/shopify"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DDBAPI is the slice of the DynamoDB API the store uses.
type DDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoStore is the production Store.
type DynamoStore struct {
	ddb DDBAPI

	vouchersTable    string
	redemptionsTable string
	ordersTable      string
	settlementsTable string
}

func NewDynamoStore(ddb DDBAPI) (*DynamoStore, error) {
	s := &DynamoStore{
		ddb:              ddb,
		vouchersTable:    strings.TrimSpace(db.VouchersTableName()),
		redemptionsTable: strings.TrimSpace(db.RedemptionsTableName()),
		ordersTable:      strings.TrimSpace(db.OrdersTableName()),
		settlementsTable: strings.TrimSpace(db.SettlementsTableName()),
	}
	if s.vouchersTable == "" || s.redemptionsTable == "" || s.ordersTable == "" || s.settlementsTable == "" {
		return nil, errors.New("missing env: VOUCHERS_TABLE, REDEMPTIONS_TABLE, ORDERS_TABLE, SETTLEMENTS_TABLE are required")
	}
	return s, nil
}

func voucherPK(giftCardID string) string   { return fmt.Sprintf("GIFTCARD#%s", giftCardID) }
func redemptionPK(voucherID string) string { return fmt.Sprintf("VOUCHER#%s", voucherID) }
func orderPK(orderID string) string        { return fmt.Sprintf("ORDER#%s", orderID) }
func brandPK(brandID string) string        { return fmt.Sprintf("BRAND#%s", brandID) }
func periodSK(period string) string        { return fmt.Sprintf("PERIOD#%s", period) }

type voucherItem struct {
	PK             string  `dynamodbav:"PK"`
	VoucherID      string  `dynamodbav:"VoucherID"`
	OrderID        string  `dynamodbav:"OrderID"`
	RemainingValue float64 `dynamodbav:"RemainingValue"`
	InitialValue   float64 `dynamodbav:"InitialValue"`
	IsRedeemed     bool    `dynamodbav:"IsRedeemed"`
	LastSyncedAt   string  `dynamodbav:"LastSyncedAt,omitempty"`
}

type redemptionItem struct {
	PK            string  `dynamodbav:"PK"`
	SK            string  `dynamodbav:"SK"`
	VoucherID     string  `dynamodbav:"VoucherID"`
	Amount        float64 `dynamodbav:"Amount"`
	BalanceAfter  float64 `dynamodbav:"BalanceAfter"`
	RedeemedAt    string  `dynamodbav:"RedeemedAt"`
	TransactionID string  `dynamodbav:"TransactionID"`
	StoreURL      string  `dynamodbav:"StoreURL"`
}

type orderItem struct {
	PK        string `dynamodbav:"PK"`
	BrandID   string `dynamodbav:"BrandID"`
	CreatedAt string `dynamodbav:"CreatedAt"`
}

type settlementItem struct {
	PK                string  `dynamodbav:"PK"`
	SK                string  `dynamodbav:"SK"`
	RedeemedAmount    float64 `dynamodbav:"RedeemedAmount"`
	OutstandingAmount float64 `dynamodbav:"OutstandingAmount"`
	TotalRedeemed     int     `dynamodbav:"TotalRedeemed"`
	Outstanding       int     `dynamodbav:"Outstanding"`
	UpdatedAt         string  `dynamodbav:"UpdatedAt,omitempty"`
}

func (s *DynamoStore) GetVoucherByGiftCardID(ctx context.Context, giftCardID string) (*Voucher, error) {
	out, err := s.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.vouchersTable),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: voucherPK(giftCardID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get voucher: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var item voucherItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal voucher: %w", err)
	}
	return &Voucher{
		ID:             item.VoucherID,
		OrderID:        item.OrderID,
		GiftCardID:     giftCardID,
		RemainingValue: item.RemainingValue,
		InitialValue:   item.InitialValue,
		IsRedeemed:     item.IsRedeemed,
	}, nil
}

func (s *DynamoStore) ListRedemptions(ctx context.Context, voucherID string) ([]Redemption, error) {
	var reds []Redemption

	var startKey map[string]ddbtypes.AttributeValue
	for {
		out, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.redemptionsTable),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":pk": &ddbtypes.AttributeValueMemberS{Value: redemptionPK(voucherID)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb query redemptions: %w", err)
		}

		var items []redemptionItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal redemptions: %w", err)
		}
		for _, it := range items {
			at, _ := time.Parse(time.RFC3339, it.RedeemedAt)
			reds = append(reds, Redemption{
				VoucherID:     voucherID,
				Amount:        it.Amount,
				BalanceAfter:  it.BalanceAfter,
				RedeemedAt:    at,
				TransactionID: it.TransactionID,
				StoreURL:      it.StoreURL,
			})
		}

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	return reds, nil
}

// InsertRedemptions writes one conditional put per row. The condition is the
// storage-level uniqueness safety net: a duplicate that slipped past the
// in-memory dedup (a concurrent run, usually) fails the condition and is
// silently dropped rather than aborting the batch.
func (s *DynamoStore) InsertRedemptions(ctx context.Context, reds []Redemption) (int, float64, error) {
	inserted := 0
	var total float64

	for _, r := range reds {
		item := redemptionItem{
			PK:            redemptionPK(r.VoucherID),
			SK:            fmt.Sprintf("TX#%s", shopify.NumericID(r.TransactionID)),
			VoucherID:     r.VoucherID,
			Amount:        r.Amount,
			BalanceAfter:  r.BalanceAfter,
			RedeemedAt:    r.RedeemedAt.UTC().Format(time.RFC3339),
			TransactionID: r.TransactionID,
			StoreURL:      r.StoreURL,
		}
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return inserted, total, fmt.Errorf("marshal redemption: %w", err)
		}

		_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.redemptionsTable),
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(SK)"),
		})
		if err != nil {
			var ccfe *ddbtypes.ConditionalCheckFailedException
			if errors.As(err, &ccfe) {
				log.Debug().Str("voucher", r.VoucherID).Str("tx", r.TransactionID).
					Msg("sync: redemption already persisted, dropped at storage layer")
				continue
			}
			return inserted, total, fmt.Errorf("dynamodb put redemption: %w", err)
		}

		inserted++
		total += r.Amount
	}

	return inserted, total, nil
}

// UpdateVoucherBalance writes the freshest remote balance back onto the
// voucher row. Vouchers are keyed by their gift card id, so the whole record
// is passed in rather than just the voucher id.
func (s *DynamoStore) UpdateVoucherBalance(ctx context.Context, voucher *Voucher, remaining float64, redeemed bool) error {
	_, err := s.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.vouchersTable),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: voucherPK(voucher.GiftCardID)},
		},
		UpdateExpression: aws.String("SET RemainingValue = :v, IsRedeemed = :r, LastSyncedAt = :t"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":v": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%.2f", remaining)},
			":r": &ddbtypes.AttributeValueMemberBOOL{Value: redeemed},
			":t": &ddbtypes.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("dynamodb update voucher %s: %w", voucher.ID, err)
	}
	return nil
}

func (s *DynamoStore) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.ordersTable),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: orderPK(orderID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get order: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var item orderItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	created, _ := time.Parse(time.RFC3339, item.CreatedAt)
	return &Order{ID: orderID, BrandID: item.BrandID, CreatedAt: created}, nil
}

func (s *DynamoStore) GetSettlement(ctx context.Context, brandID, period string) (*Settlement, error) {
	out, err := s.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.settlementsTable),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: brandPK(brandID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: periodSK(period)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get settlement: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var item settlementItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal settlement: %w", err)
	}
	return &Settlement{
		BrandID:           brandID,
		Period:            period,
		RedeemedAmount:    item.RedeemedAmount,
		OutstandingAmount: item.OutstandingAmount,
		TotalRedeemed:     item.TotalRedeemed,
		Outstanding:       item.Outstanding,
	}, nil
}

// ApplySettlementDelta increments the row in place — never a read-modify-write
// of the absolute values, so concurrent runs across processes commute. The
// attribute_exists guard keeps a vanished row from being resurrected as a
// bare delta.
func (s *DynamoStore) ApplySettlementDelta(ctx context.Context, brandID, period string, d SettlementDelta) error {
	_, err := s.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.settlementsTable),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: brandPK(brandID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: periodSK(period)},
		},
		UpdateExpression:    aws.String("SET UpdatedAt = :u ADD RedeemedAmount :ra, OutstandingAmount :oa, TotalRedeemed :tr, Outstanding :o"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":u":  &ddbtypes.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			":ra": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%.2f", d.RedeemedAmount)},
			":oa": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%.2f", d.OutstandingAmount)},
			":tr": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", d.TotalRedeemed)},
			":o":  &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", d.Outstanding)},
		},
	})
	if err != nil {
		var ccfe *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccfe) {
			return nil
		}
		return fmt.Errorf("dynamodb update settlement %s/%s: %w", brandID, period, err)
	}
	return nil
}
