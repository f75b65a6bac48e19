package shops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"giftbackend/internal/db"
	"giftbackend/internal/security"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DDBClient is the slice of the DynamoDB API this package needs.
type DDBClient interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Installation is one connected store credential. The token is already
// decrypted; callers never see the stored ciphertext.
type Installation struct {
	Domain      string
	AccessToken string
	InstalledAt string
	Status      string
}

type shopItem struct {
	PK             string `dynamodbav:"PK"`
	Shop           string `dynamodbav:"Shop"`
	AccessTokenEnc string `dynamodbav:"AccessTokenEnc"`
	InstalledAt    string `dynamodbav:"InstalledAt,omitempty"`
	Status         string `dynamodbav:"Status,omitempty"`
}

// ListInstallations scans the shops table and decrypts each access token.
// Rows without a usable domain or token are logged and skipped; the
// installation lifecycle is owned by the onboarding flow, not by us.
func ListInstallations(ctx context.Context, ddb DDBClient) ([]Installation, error) {
	table := strings.TrimSpace(db.ShopsTableName())
	if table == "" {
		return nil, errors.New("SHOPS_TABLE not set")
	}

	keyB64 := strings.TrimSpace(os.Getenv("TOKEN_ENC_KEY_B64"))
	if keyB64 == "" {
		return nil, errors.New("TOKEN_ENC_KEY_B64 not set")
	}
	key, err := security.LoadKeyFromBase64(keyB64)
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_ENC_KEY_B64: %w", err)
	}

	var installs []Installation
	seen := map[string]bool{}

	var startKey map[string]ddbtypes.AttributeValue
	for {
		out, err := ddb.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(table),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb scan %s: %w", table, err)
		}

		for _, it := range out.Items {
			var item shopItem
			if err := attributevalue.UnmarshalMap(it, &item); err != nil {
				log.Warn().Err(err).Msg("shops: unreadable installation row, skipping")
				continue
			}

			domain := strings.ToLower(strings.TrimSpace(item.Shop))
			if domain == "" || seen[domain] {
				continue
			}

			token, err := security.DecryptToken(key, strings.TrimSpace(item.AccessTokenEnc))
			if err != nil {
				log.Warn().Str("shop", domain).Err(err).Msg("shops: cannot decrypt access token, skipping")
				continue
			}

			seen[domain] = true
			installs = append(installs, Installation{
				Domain:      domain,
				AccessToken: token,
				InstalledAt: item.InstalledAt,
				Status:      item.Status,
			})
		}

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	return installs, nil
}

// Source bundles the package functions behind one value so callers can take
// an interface instead of a DynamoDB handle.
type Source struct {
	DDB DDBClient
}

func (s Source) ListInstallations(ctx context.Context) ([]Installation, error) {
	return ListInstallations(ctx, s.DDB)
}

func (s Source) TouchLastSync(ctx context.Context, domain, atISO string) error {
	return TouchLastSync(ctx, s.DDB, domain, atISO)
}

// TouchLastSync records when a shop was last synced. Best-effort: callers
// ignore the error beyond logging it.
func TouchLastSync(ctx context.Context, ddb DDBClient, domain, atISO string) error {
	table := strings.TrimSpace(db.ShopsTableName())
	if table == "" {
		return errors.New("SHOPS_TABLE not set")
	}
	if strings.TrimSpace(domain) == "" {
		return errors.New("missing shop domain")
	}

	_, err := ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(table),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: fmt.Sprintf("SHOP#%s", domain)},
		},
		UpdateExpression: aws.String("SET LastSyncAt = :a"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":a": &ddbtypes.AttributeValueMemberS{Value: atISO},
		},
	})
	return err
}
