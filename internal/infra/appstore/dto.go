package appstore

import (
	"time"

	"protalk/internal/domain/entity"
)

const (
	typeCustomerReviews         = "customerReviews"
	typeCustomerReviewResponses = "customerReviewResponses"
)

type reviewsDocument struct {
	Data     []reviewResource   `json:"data"`
	Included []responseResource `json:"included"`
	Links    struct {
		Self string `json:"self"`
		Next string `json:"next"`
	} `json:"links"`
}

type reviewResource struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes struct {
		Rating           int       `json:"rating"`
		Title            string    `json:"title"`
		Body             string    `json:"body"`
		ReviewerNickname string    `json:"reviewerNickname"`
		CreatedDate      time.Time `json:"createdDate"`
		Territory        string    `json:"territory"`
	} `json:"attributes"`
	Relationships struct {
		Response struct {
			Data *resourceIdentifier `json:"data"`
		} `json:"response"`
	} `json:"relationships"`
}

type resourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type responseResource struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes struct {
		ResponseBody     string     `json:"responseBody"`
		LastModifiedDate *time.Time `json:"lastModifiedDate"`
		State            string     `json:"state"`
	} `json:"attributes"`
}

type createResponseDocument struct {
	Data createResponseData `json:"data"`
}

type createResponseData struct {
	Type       string `json:"type"`
	Attributes struct {
		ResponseBody string `json:"responseBody"`
	} `json:"attributes"`
	Relationships struct {
		Review struct {
			Data resourceIdentifier `json:"data"`
		} `json:"review"`
	} `json:"relationships"`
}

type responseDocument struct {
	Data responseResource `json:"data"`
}

// toReviews maps one page to domain reviews, attaching included developer responses.
func (d *reviewsDocument) toReviews(appID string) []entity.Review {
	responses := make(map[string]responseResource, len(d.Included))
	for _, inc := range d.Included {
		if inc.Type == typeCustomerReviewResponses {
			responses[inc.ID] = inc
		}
	}

	reviews := make([]entity.Review, 0, len(d.Data))
	for _, res := range d.Data {
		r := entity.Review{
			ID:               res.ID,
			AppID:            appID,
			Rating:           res.Attributes.Rating,
			Title:            res.Attributes.Title,
			Body:             res.Attributes.Body,
			ReviewerNickname: res.Attributes.ReviewerNickname,
			CreatedDate:      res.Attributes.CreatedDate,
			Territory:        res.Attributes.Territory,
		}
		if ref := res.Relationships.Response.Data; ref != nil {
			if resp, ok := responses[ref.ID]; ok && resp.Attributes.ResponseBody != "" {
				at := r.CreatedDate
				if resp.Attributes.LastModifiedDate != nil {
					at = *resp.Attributes.LastModifiedDate
				}
				r.SetResponse(resp.Attributes.ResponseBody, at)
				r.ResponseState = resp.Attributes.State
			}
		}
		reviews = append(reviews, r)
	}
	return reviews
}
