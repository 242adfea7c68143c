package helpers

import (
	"fmt"
	"os"
	"path/filepath"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func OpenDataFile(dataDirectory, fileName string) (*os.File, error) {
	filePath := filepath.Join(dataDirectory, fileName)
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("error opening data file %s: %w", fileName, err)
	}
	return file, nil
}

// DeleteDataFile deletes a file, a missing file is not an error.
func DeleteDataFile(filePath string) error {
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string, logger *zap.SugaredLogger) bool {
	info, err := os.Stat(filename)
	if err != nil {
		if !os.IsNotExist(err) && logger != nil {
			logger.Infof("Error checking file %s for existence: %s", filename, err)
		}
		return false
	}

	return !info.IsDir()
}

func EncodeBSON(data map[string]interface{}) ([]byte, error) {
	bsonData, err := bson.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("error encoding bson: %w", err)
	}
	return bsonData, nil
}

// DecodeBSON decodes one document and normalises driver types to plain Go
// values, see Normalize.
func DecodeBSON(bsonData []byte) (map[string]interface{}, error) {
	var decodedData bson.M
	if err := bson.Unmarshal(bsonData, &decodedData); err != nil {
		return nil, fmt.Errorf("error decoding bson: %w", err)
	}
	return NormalizeMap(decodedData), nil
}

// BSONDocumentSize reads the little endian length prefix every BSON
// document starts with.
func BSONDocumentSize(data []byte, offset int) (int, error) {
	if len(data[offset:]) < 4 {
		return 0, fmt.Errorf("insufficient data to read document size at offset %d", offset)
	}
	size := int(data[offset]) | int(data[offset+1])<<8 | int(data[offset+2])<<16 | int(data[offset+3])<<24
	if size < 5 || offset+size > len(data) {
		return 0, fmt.Errorf("corrupt document length %d at offset %d", size, offset)
	}
	return size, nil
}
