package minisql

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/spf13/cast"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// conformanceEnv enables the tests comparing the engine with a MySQL server
// started in docker
const conformanceEnv = "MINISQL_CONFORMANCE"

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()

	if os.Getenv(conformanceEnv) == "" {
		t.Skipf("set %s to compare against a MySQL server", conformanceEnv)
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mysql:8.0",
			ExposedPorts: []string{"3306/tcp"},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": "secret",
				"MYSQL_DATABASE":      "shop",
			},
			WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").WithStartupTimeout(3 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	db, err := sql.Open("mysql", fmt.Sprintf("root:secret@tcp(%s:%s)/shop", host, port.Port()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	require.Eventually(t, func() bool {
		return db.PingContext(ctx) == nil
	}, time.Minute, time.Second)

	return db
}

// serverValue returns the text protocol value of the expression, nil for NULL
func serverValue(ctx context.Context, db *sql.DB, expression string) (interface{}, error) {
	var raw sql.RawBytes

	rows, err := db.QueryContext(ctx, "SELECT "+expression)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = rows.Close()
	}()

	if !rows.Next() {
		return nil, rows.Err()
	}

	if err := rows.Scan(&raw); err != nil {
		return nil, err
	}

	if raw == nil {
		return nil, nil
	}

	return string(raw), nil
}

func TestConformanceExpressions(t *testing.T) {
	db := startMySQL(t)
	ctx := context.Background()

	s, err := NewSession("/shop")
	require.NoError(t, err)

	expressions := []string{
		"1 + 2 * 3",
		"7 DIV 2",
		"7 % 3",
		"-7 MOD 3",
		"5 & 3 | 8",
		"1 << 4",
		"'abc' = 'ABC'",
		"'abc' < 'abd'",
		"NULL = NULL",
		"NULL <=> NULL",
		"1 = '1'",
		"2 BETWEEN 1 AND 3",
		"3 NOT BETWEEN 1 AND 2",
		"2 IN (1, 2, 3)",
		"NULL IN (1, 2)",
		"1 IN (2, NULL)",
		"'Ash' LIKE 'A%'",
		"'a_c' LIKE 'a\\_c'",
		"'kanto' REGEXP '^k.n'",
		"CASE WHEN 1 > 2 THEN 'a' WHEN 2 > 1 THEN 'b' END",
		"CASE 3 WHEN 1 THEN 'one' ELSE 'other' END",
		"NULL IS NULL",
		"0 IS FALSE",
		"NOT 0",
		"1 XOR 1",
		"1 AND NULL",
		"0 AND NULL",
		"1 OR NULL",
		"IF(1 > 0, 'yes', 'no')",
		"IFNULL(NULL, 'fallback')",
		"COALESCE(NULL, NULL, 3)",
		"NULLIF(1, 1)",
		"CONCAT('a', 1, 'b')",
		"CONCAT('a', NULL)",
		"CONCAT_WS('-', 'a', NULL, 'b')",
		"UPPER('mew')",
		"SUBSTRING('pokemon', 2, 3)",
		"SUBSTRING_INDEX('www.kanto.com', '.', 2)",
		"LENGTH('pikachu')",
		"TRIM('  x  ')",
		"REPLACE('aaa', 'a', 'b')",
		"LEFT('kanto', 2)",
		"FIELD('b', 'a', 'b')",
		"GREATEST(1, 5, 3)",
		"LEAST('b', 'a')",
		"ABS(-4)",
		"FLOOR(2.7)",
		"CEIL(2.1)",
		"CAST('12abc' AS SIGNED)",
		"CAST(7 AS CHAR)",
		"DATE_FORMAT('2024-02-29 13:04:05', '%Y/%m/%d %H:%i')",
		"DATE_ADD('2024-01-31', INTERVAL 1 MONTH)",
		"DATE('2024-02-29 13:04:05')",
	}

	for _, expression := range expressions {
		t.Run(expression, func(t *testing.T) {
			expected, err := serverValue(ctx, db, expression)
			require.NoError(t, err)

			actual, err := s.Evaluate(expression, nil)
			require.NoError(t, err)

			if actual != nil {
				actual = cast.ToString(actual)
			}

			require.Equal(t, expected, actual)
		})
	}
}

func TestConformanceErrors(t *testing.T) {
	db := startMySQL(t)
	ctx := context.Background()

	s, err := NewSession("/shop")
	require.NoError(t, err)

	expressions := []string{
		"missing_column + 1",
		"1 +",
		"UNKNOWN_FUNCTION(1)",
	}

	for _, expression := range expressions {
		t.Run(expression, func(t *testing.T) {
			_, serverErr := serverValue(ctx, db, expression)
			require.Error(t, serverErr)

			_, err := s.Evaluate(expression, nil)
			require.Error(t, err)

			require.Equal(t, mysqlCode(serverErr), mysqlCode(err))
		})
	}
}
