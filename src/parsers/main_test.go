package parsers

import (
	"os"
	"testing"

	"github.com/username/tradeclarity/backend/src/logger"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}
